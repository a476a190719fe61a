package control

import (
	"context"
	"fmt"

	"github.com/cwsl/radiosession"
	"github.com/cwsl/radiosession/store"
)

// AudioStream is a thin façade over one DAX/remote-audio stream instance.
type AudioStream struct {
	session *radiosession.Session
	id      string
}

// NewAudioStream wraps audio stream id for command issuance.
func NewAudioStream(session *radiosession.Session, id string) *AudioStream {
	return &AudioStream{session: session, id: id}
}

// CreateAudioStream issues "audio_stream create" for one of the stream types
// named in §4.5 (remote_audio_rx, remote_audio_tx, dax_rx, dax_tx, dax_mic),
// with the given codec and PCM geometry. daxChannel is ignored (omitted from
// the command) when <= 0, since only the dax_* types take one. The new
// stream's id is read off the create command's reply, the same convention
// every other create-style command on this wire uses.
func CreateAudioStream(ctx context.Context, session *radiosession.Session, streamType, compression string, sampleRateHz, channels, daxChannel int) (*AudioStream, error) {
	cmd := fmt.Sprintf("audio_stream create type=%s compression=%s sample_rate=%d channels=%d",
		formatEnum(streamType), formatEnum(compression), sampleRateHz, channels)
	if daxChannel > 0 {
		cmd += fmt.Sprintf(" dax_channel=%d", daxChannel)
	}

	var newID string
	sub := session.Once(radiosession.EventReply, func(ev radiosession.Event) {
		if ev.ReplyFrame != nil {
			newID = ev.ReplyFrame.Message
		}
	})
	defer sub.Cancel()

	if err := session.Command(ctx, cmd); err != nil {
		return nil, err
	}
	return NewAudioStream(session, store.NormalizeID(newID)), nil
}

// SetCompression switches the stream's wire codec ("none" or "opus").
func (a *AudioStream) SetCompression(ctx context.Context, codec string) error {
	codec = formatEnum(codec)
	if err := a.session.Command(ctx, fmt.Sprintf("audio_stream set %s compression=%s", a.id, codec)); err != nil {
		_ = a.session.Command(ctx, "sub audio_stream all")
		return err
	}
	return nil
}

// Remove tears down the stream.
func (a *AudioStream) Remove(ctx context.Context) error {
	return a.session.Command(ctx, fmt.Sprintf("audio_stream remove %s", a.id))
}
