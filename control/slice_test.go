package control

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/radiosession"
)

// fakeRadio is a minimal wire-compatible server half: it sends the handle
// line immediately, then acknowledges every command with a zero-code reply.
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

func newTestSession(t *testing.T) *radiosession.Session {
	t.Helper()
	client, server := net.Pipe()
	go fakeRadio(t, server)
	t.Cleanup(func() { server.Close() })

	s := radiosession.NewSession(client, radiosession.DefaultConfig(), nil)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSliceSettersPatchStoreAndSendCommand(t *testing.T) {
	s := newTestSession(t)
	s.Store().Apply(radiosession.StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{
		"freq": "14.250000", "mode": "USB",
	}})

	sl := NewSlice(s, "0")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sl.SetTXAntenna(ctx, "ANT2"))
	require.NoError(t, sl.SetDAXChannel(ctx, 3))
	require.NoError(t, sl.SetTuneStep(ctx, 500))
	require.NoError(t, sl.SetFMTone(ctx, "ctcss", "100.0", 5000))
	require.NoError(t, sl.SetDiversity(ctx, true, false, 2))

	st, ok := s.Store().GetSlice("0")
	require.True(t, ok)
	assert.Equal(t, "ANT2", st.TXAnt)
	assert.Equal(t, 3, st.DAXChannel)
	assert.Equal(t, 500, st.TuneStep)
	assert.Equal(t, "ctcss", st.FMToneMode)
	assert.Equal(t, "100.0", st.FMToneValue)
	assert.Equal(t, 5000, st.FMDeviation)
	assert.True(t, st.DiversityParent)
	assert.False(t, st.DiversityChild)
	assert.Equal(t, 2, st.DiversityIndex)
}
