package control

import (
	"context"
	"fmt"

	"github.com/cwsl/radiosession"
)

// Radio is a thin façade over the radio singleton and its ATU/interlock
// substates.
type Radio struct {
	session *radiosession.Session
}

// NewRadio wraps the session's radio singleton for command issuance.
func NewRadio(session *radiosession.Session) *Radio { return &Radio{session: session} }

func (r *Radio) resync(ctx context.Context) { _ = r.session.Command(ctx, "sub radio all") }

// SetNickname sets the radio's user-visible nickname.
func (r *Radio) SetNickname(ctx context.Context, nickname string) error {
	r.session.Store().PatchRadio(map[string]any{"nickname": nickname})
	if err := r.session.Command(ctx, fmt.Sprintf("radio set nickname=%s", nickname)); err != nil {
		r.resync(ctx)
		return err
	}
	return nil
}

// SetCallsign sets the station callsign.
func (r *Radio) SetCallsign(ctx context.Context, callsign string) error {
	r.session.Store().PatchRadio(map[string]any{"callsign": callsign})
	if err := r.session.Command(ctx, fmt.Sprintf("radio set callsign=%s", callsign)); err != nil {
		r.resync(ctx)
		return err
	}
	return nil
}

// StartATUTune requests the ATU begin an auto-tune cycle.
func (r *Radio) StartATUTune(ctx context.Context) error {
	return r.session.Command(ctx, "atu tune_start")
}

// ClearATU clears a fault or bypasses the ATU.
func (r *Radio) ClearATU(ctx context.Context) error {
	return r.session.Command(ctx, "atu clear")
}

// RequestPTT requests the interlock transition to TRANSMITTING. The radio
// alone decides whether the request is honored (§GLOSSARY interlock state
// machine); the caller observes the outcome via the next radio status
// frame, not the command's own reply.
func (r *Radio) RequestPTT(ctx context.Context, on bool) error {
	return r.session.Command(ctx, fmt.Sprintf("interlock ptt=%s", formatBool(on)))
}

// LoadProfile loads a named profile of the given kind ("global", "tx",
// "mic", "display").
func (r *Radio) LoadProfile(ctx context.Context, kind, name string) error {
	return r.session.Command(ctx, fmt.Sprintf("profile %s load %s", formatEnum(kind), name))
}
