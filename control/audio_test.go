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

// fakeRadioCreateAudio replies to "audio_stream create" with the new
// stream's id as the reply message, and "ok" to everything else.
func fakeRadioCreateAudio(t *testing.T, conn net.Conn) {
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
		if strings.Contains(rest, "audio_stream create") {
			conn.Write([]byte("R" + seq + "|0|0x4B000001\n"))
			continue
		}
		conn.Write([]byte("R" + seq + "|0|ok\n"))
	}
}

func TestCreateAudioStreamReadsIDFromReply(t *testing.T) {
	client, server := net.Pipe()
	go fakeRadioCreateAudio(t, server)
	defer server.Close()

	s := radiosession.NewSession(client, radiosession.DefaultConfig(), nil)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := CreateAudioStream(ctx, s, "dax_rx", "opus", 48000, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "0x4B000001", stream.id)
}
