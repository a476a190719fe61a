package dataplane

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panFrame(streamID, start, num, total uint32, frameIndex uint32) []byte {
	body := make([]byte, 8+int(num)*2)
	binary.BigEndian.PutUint16(body[0:2], uint16(start))
	binary.BigEndian.PutUint16(body[2:4], uint16(num))
	binary.BigEndian.PutUint16(body[4:6], uint16(total))
	for i := uint32(0); i < num; i++ {
		binary.BigEndian.PutUint16(body[8+i*2:10+i*2], uint16(start+i))
	}
	return append(header(streamID, ClassPanadapter, uint16(len(body)), frameIndex), body...)
}

func TestDemuxAssemblesPanadapterSpectrum(t *testing.T) {
	d := NewDemux(8)
	frames := make(chan Frame, 8)
	d.Subscribe(1, func(f Frame) { frames <- f })

	require.NoError(t, d.Ingest(panFrame(1, 0, 2, 4, 0)))
	require.NoError(t, d.Ingest(panFrame(1, 2, 2, 4, 1)))

	var complete *PanadapterPayload
	for complete == nil {
		select {
		case f := <-frames:
			if p, ok := f.Payload.(*PanadapterPayload); ok && p.NumBins == p.TotalBins {
				complete = p
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
	require.NotNil(t, complete)
	assert.Equal(t, []uint16{0, 1, 2, 3}, complete.Bins)
}

func TestDemuxDetectsGap(t *testing.T) {
	d := NewDemux(8)
	var missed uint32
	d.OnGap = func(streamID uint32, m uint32) { missed = m }

	require.NoError(t, d.Ingest(panFrame(1, 0, 1, 1, 0)))
	require.NoError(t, d.Ingest(panFrame(1, 0, 1, 1, 5)))
	assert.Equal(t, uint32(4), missed)
}

func TestDemuxBackpressureDropsOldest(t *testing.T) {
	d := NewDemux(1)
	block := make(chan struct{})
	started := make(chan struct{})
	var drops int
	d.OnDrop = func(streamID uint32) { drops++ }

	var startOnce sync.Once
	d.Subscribe(1, func(f Frame) {
		startOnce.Do(func() { close(started) })
		<-block
	})

	require.NoError(t, d.Ingest(panFrame(1, 0, 1, 1, 0)))
	<-started
	// Handler is now blocked inside the first delivery; its queue (depth 1)
	// absorbs one more frame, then every frame after that is a drop.
	require.NoError(t, d.Ingest(panFrame(1, 0, 1, 1, 1)))
	require.NoError(t, d.Ingest(panFrame(1, 0, 1, 1, 2)))
	close(block)

	assert.GreaterOrEqual(t, drops, 1)
}
