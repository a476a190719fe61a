package radiosession

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn adapts a net.Conn half of a net.Pipe to ControlTransport.
type pipeConn struct{ net.Conn }

func newEngineOverPipe(t *testing.T) (*protocolEngine, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	cfg := DefaultConfig()
	cfg.CommandTimeout = 200 * time.Millisecond
	e := newProtocolEngine(pipeConn{client}, cfg)
	scanner := bufio.NewScanner(e.conn)
	go e.readLoop(scanner)
	return e, server
}

func TestProtocolEngineSendAndReply(t *testing.T) {
	e, server := newEngineOverPipe(t)
	defer server.Close()

	go func() {
		buf := make([]byte, 4096)
		n, _ := server.Read(buf)
		line := string(buf[:n])
		require.Contains(t, line, "C1|slice tune 0 14.250000")
		server.Write([]byte("R1|0|ok\n"))
	}()

	_, resolve, err := e.send("slice tune 0 14.250000")
	require.NoError(t, err)

	select {
	case reply := <-resolve:
		assert.Equal(t, uint32(0), reply.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestProtocolEngineCommandTimeout(t *testing.T) {
	e, server := newEngineOverPipe(t)
	defer server.Close()

	_, resolve, err := e.send("ping")
	require.NoError(t, err)

	select {
	case reply := <-resolve:
		assert.Equal(t, "command-timeout", reply.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for synthesized timeout reply")
	}
}

func TestParseStatusLine(t *testing.T) {
	sf, ok := parseStatusLine("aabbccdd|slice 0 freq=14.250000 mode=USB")
	require.True(t, ok)
	assert.Equal(t, "slice", sf.Scope)
	assert.Equal(t, "0", sf.Identifier)
	assert.Equal(t, "14.250000", sf.Attrs["freq"])
	assert.Equal(t, "USB", sf.Attrs["mode"])
}

func TestParseStatusLineDisplayPan(t *testing.T) {
	sf, ok := parseStatusLine("aabbccdd|display pan 40000000 center_freq=14.200000")
	require.True(t, ok)
	assert.Equal(t, "display pan", sf.Scope)
	assert.Equal(t, "40000000", sf.Identifier)
}

func TestParseNoticeLine(t *testing.T) {
	nf, ok := parseNoticeLine("0x00000002|firmware update available")
	require.True(t, ok)
	assert.Equal(t, uint32(2), nf.Code)
	assert.Equal(t, "firmware update available", nf.Text)
}
