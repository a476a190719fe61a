package dataplane

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(streamID uint32, class Class, payloadSize uint16, frameIndex uint32) []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], streamID)
	binary.BigEndian.PutUint16(buf[4:6], uint16(class))
	binary.BigEndian.PutUint16(buf[6:8], 0)
	binary.BigEndian.PutUint32(buf[8:12], 0)
	binary.BigEndian.PutUint32(buf[12:16], 0)
	binary.BigEndian.PutUint16(buf[16:18], payloadSize)
	binary.BigEndian.PutUint32(buf[18:22], 48000)
	binary.BigEndian.PutUint32(buf[22:26], frameIndex)
	return buf
}

func TestParseFrameMeter(t *testing.T) {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], 7)
	binary.BigEndian.PutUint16(body[2:4], uint16(int16(-100)))
	raw := append(header(1, ClassMeter, 4, 0), body...)

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	mp, ok := f.Payload.(*MeterPayload)
	require.True(t, ok)
	require.Len(t, mp.Samples, 1)
	assert.Equal(t, uint16(7), mp.Samples[0].MeterID)
	assert.Equal(t, int16(-100), mp.Samples[0].ValueQ15)
}

func TestParseFrameTruncated(t *testing.T) {
	raw := header(1, ClassMeter, 4, 0) // no body
	_, err := ParseFrame(raw)
	require.Error(t, err)
	var te *ErrTruncated
	assert.ErrorAs(t, err, &te)
}

func TestParseFramePanadapter(t *testing.T) {
	// startBinIndex:u16, numBins:u16, totalBins:u16, reserved:u16, bins...
	body := make([]byte, 8+2*3)
	binary.BigEndian.PutUint16(body[0:2], 0)
	binary.BigEndian.PutUint16(body[2:4], 3)
	binary.BigEndian.PutUint16(body[4:6], 3)
	for i := 0; i < 3; i++ {
		binary.BigEndian.PutUint16(body[8+i*2:10+i*2], uint16(i*10))
	}
	raw := append(header(2, ClassPanadapter, uint16(len(body)), 0), body...)

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	pp, ok := f.Payload.(*PanadapterPayload)
	require.True(t, ok)
	assert.Equal(t, uint16(0), pp.StartBinIndex)
	assert.Equal(t, uint16(3), pp.TotalBins)
	assert.Equal(t, []uint16{0, 10, 20}, pp.Bins)
}

func TestParseFrameWaterfall(t *testing.T) {
	// startBinIndex:u16, numBins:u16, reserved:u16, reserved:u16, bins...
	body := make([]byte, 8+2*2)
	binary.BigEndian.PutUint16(body[0:2], 4)
	binary.BigEndian.PutUint16(body[2:4], 2)
	binary.BigEndian.PutUint16(body[8:10], 11)
	binary.BigEndian.PutUint16(body[10:12], 22)
	raw := append(header(3, ClassWaterfall, uint16(len(body)), 0), body...)

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	wp, ok := f.Payload.(*WaterfallPayload)
	require.True(t, ok)
	assert.Equal(t, uint16(4), wp.StartBinIndex)
	assert.Equal(t, []uint16{11, 22}, wp.Bins)
}

func TestParseFrameAudio(t *testing.T) {
	// channels:u8, compression:u8, reserved:u16, payload...
	body := []byte{2, 1, 0, 0, 0xAA, 0xBB, 0xCC}
	raw := append(header(4, ClassAudio, uint16(len(body)), 0), body...)

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	ap, ok := f.Payload.(*AudioPayload)
	require.True(t, ok)
	assert.Equal(t, uint8(2), ap.Channels)
	assert.Equal(t, "opus", ap.Encoding)
	assert.Equal(t, uint32(48000), ap.SampleRateHz)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, ap.Data)
}
