package radiosession

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/radiosession/dataplane"
)

// fakeDataTransport feeds pre-built raw datagrams to AttachData's ingest
// loop, the way a real DataTransport feeds UDP multicast frames.
type fakeDataTransport struct {
	frames chan []byte
	closed chan struct{}
}

func newFakeDataTransport() *fakeDataTransport {
	return &fakeDataTransport{frames: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeDataTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case fr, ok := <-f.frames:
		if !ok {
			return nil, io.EOF
		}
		return fr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeDataTransport) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

// meterFrame builds one raw data-plane datagram carrying a single
// (meterID, Q15 value) reading.
func meterFrame(meterID uint16, q15 int16) []byte {
	buf := make([]byte, 26+4)
	binary.BigEndian.PutUint32(buf[0:4], 0x99)
	binary.BigEndian.PutUint16(buf[4:6], uint16(dataplane.ClassMeter))
	binary.BigEndian.PutUint16(buf[16:18], 4)
	binary.BigEndian.PutUint16(buf[26:28], meterID)
	binary.BigEndian.PutUint16(buf[28:30], uint16(q15))
	return buf
}

// fakeRadio is a minimal wire-compatible server half used to drive Session
// through a full handshake: it sends the handle line immediately, then
// acknowledges every command with a zero-code reply.
func fakeRadio(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.Write([]byte("Haabbccdd\n"))
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "C") {
			continue
		}
		rest := line[1:]
		bar := strings.IndexByte(rest, '|')
		if bar < 0 {
			continue
		}
		seq := rest[:bar]
		conn.Write([]byte("R" + seq + "|0|ok\n"))
	}
}

func TestSessionConnectReachesReady(t *testing.T) {
	client, server := net.Pipe()
	go fakeRadio(t, server)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.HandleTimeout = 2 * time.Second
	cfg.CommandTimeout = 2 * time.Second
	s := NewSession(pipeConn{client}, cfg, nil)

	var stages []Stage
	s.On(EventProgress, func(ev Event) { stages = append(stages, ev.Progress) })

	ready := make(chan struct{})
	s.Once(EventReady, func(ev Event) { close(ready) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready event")
	}

	assert.Equal(t, StageReady, s.Stage())
	assert.Equal(t, "0xAABBCCDD", s.Store().LocalClientHandle())
	assert.Contains(t, stages, StageConnecting)
	assert.Contains(t, stages, StageHandshaking)
	assert.Contains(t, stages, StageReady)

	s.Close()
}

func TestSessionStatusFrameEmitsChange(t *testing.T) {
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeRadio(t, server)
	}()
	defer server.Close()

	cfg := DefaultConfig()
	s := NewSession(pipeConn{client}, cfg, nil)
	require.NoError(t, s.Connect(context.Background()))

	changeCh := make(chan Event, 1)
	s.On(EventChange, func(ev Event) {
		select {
		case changeCh <- ev:
		default:
		}
	})

	server.Write([]byte("Saabbccdd|slice 0 freq=14.250000 mode=USB\n"))

	select {
	case ev := <-changeCh:
		require.NotNil(t, ev.Change)
		assert.Equal(t, "slice", string(ev.Change.Kind))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}

	s.Close()
}

func TestSessionAttachDataUpdatesMeterStore(t *testing.T) {
	client, server := net.Pipe()
	go fakeRadio(t, server)
	defer server.Close()

	s := NewSession(pipeConn{client}, DefaultConfig(), nil)
	require.NoError(t, s.Connect(context.Background()))

	dt := newFakeDataTransport()
	defer dt.Close()
	s.AttachData(dt)

	changeCh := make(chan Event, 1)
	s.On(EventChange, func(ev Event) {
		select {
		case changeCh <- ev:
		default:
		}
	})

	dt.frames <- meterFrame(1, 16384) // Q15 0.5

	select {
	case ev := <-changeCh:
		require.NotNil(t, ev.Change)
		assert.Equal(t, "meter", string(ev.Change.Kind))
		assert.Equal(t, "1", ev.Change.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for meter change event")
	}

	m, ok := s.Store().GetMeter("1")
	require.True(t, ok)
	assert.InDelta(t, 0.5, m.Value, 0.001)

	s.Close()
}

func TestSessionCommandRejected(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		conn := server
		conn.Write([]byte("Haabbccdd\n"))
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := scanner.Text()
			rest := line[1:]
			bar := strings.IndexByte(rest, '|')
			seq := rest[:bar]
			if strings.Contains(rest, "bogus") {
				conn.Write([]byte("R" + seq + "|0x02|invalid argument\n"))
				continue
			}
			conn.Write([]byte("R" + seq + "|0|ok\n"))
		}
	}()
	defer server.Close()

	s := NewSession(pipeConn{client}, DefaultConfig(), nil)
	require.NoError(t, s.Connect(context.Background()))

	err := s.Command(context.Background(), "slice set 0 bogus=1")
	require.Error(t, err)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindCommandRejected, re.Kind)
	assert.Equal(t, uint32(2), re.Code)

	s.Close()
}
