package control

import (
	"context"
	"fmt"

	"github.com/cwsl/radiosession"
	"github.com/cwsl/radiosession/store"
)

// Slice is a thin façade over one receiver slice: every setter patches the
// store immediately (so a caller's very next Store().GetSlice sees the new
// value) then sends the wire command; if the radio rejects it, the
// controller forces a resync by re-issuing the slice subscription, and the
// resulting status frame overwrites the optimistic guess with truth.
type Slice struct {
	session *radiosession.Session
	id      string
}

// NewSlice wraps slice id for command issuance. The slice need not exist
// yet in the store (e.g. immediately after "slice create").
func NewSlice(session *radiosession.Session, id string) *Slice {
	return &Slice{session: session, id: id}
}

func (s *Slice) get() (*store.Slice, bool) { return s.session.Store().GetSlice(s.id) }

func (s *Slice) resync(ctx context.Context) {
	_ = s.session.Command(ctx, "sub slice all")
}

func (s *Slice) apply(ctx context.Context, cmd string, fields map[string]any) error {
	s.session.Store().PatchSlice(s.id, fields)
	if err := s.session.Command(ctx, cmd); err != nil {
		s.resync(ctx)
		return err
	}
	return nil
}

// SetFrequency tunes the slice to mhz, canonicalized to 6 decimal places.
func (s *Slice) SetFrequency(ctx context.Context, mhz float64) error {
	canon := store.CanonicalizeMHz(mhz)
	cmd := fmt.Sprintf("slice tune %s %s", s.id, formatMHz(canon))
	return s.apply(ctx, cmd, map[string]any{"frequencyMHz": canon})
}

// SetMode changes demodulation mode ("USB", "LSB", "CW", "DIGU", "FM", ...).
func (s *Slice) SetMode(ctx context.Context, mode string) error {
	norm := formatEnum(mode)
	cmd := fmt.Sprintf("slice set %s mode=%s", s.id, norm)
	return s.apply(ctx, cmd, map[string]any{"mode": norm})
}

// SetFilter sets the receive filter passband. Violates the invariant
// filterLow <= filterHigh (§8) are rejected locally before any command is
// sent, matching the radio's own behavior without waiting on a round trip.
func (s *Slice) SetFilter(ctx context.Context, lowHz, highHz int) error {
	if lowHz > highHz {
		return &radiosession.Error{Kind: radiosession.KindCommandRejected,
			Description: "filterLow must be <= filterHigh",
			Raw:         fmt.Sprintf("filter_lo=%d filter_hi=%d", lowHz, highHz)}
	}
	cmd := fmt.Sprintf("slice set %s filter_lo=%d filter_hi=%d", s.id, lowHz, highHz)
	return s.apply(ctx, cmd, map[string]any{"filterLowHz": lowHz, "filterHighHz": highHz})
}

// SetRXAntenna changes the slice's receive antenna port.
func (s *Slice) SetRXAntenna(ctx context.Context, ant string) error {
	cmd := fmt.Sprintf("slice set %s rxant=%s", s.id, ant)
	return s.apply(ctx, cmd, map[string]any{"rxAnt": ant})
}

// SetAGC sets the AGC mode and threshold (0..100, clamped).
func (s *Slice) SetAGC(ctx context.Context, mode string, threshold int) error {
	threshold = clampLevel(threshold)
	norm := formatEnum(mode)
	cmd := fmt.Sprintf("slice set %s agc_mode=%s agc_threshold=%d", s.id, norm, threshold)
	return s.apply(ctx, cmd, map[string]any{"agcMode": norm, "agcThreshold": threshold})
}

// SetRIT enables/disables receive incremental tuning and sets its offset.
func (s *Slice) SetRIT(ctx context.Context, enabled bool, offsetHz int) error {
	cmd := fmt.Sprintf("slice set %s rit_on=%s rit_freq=%d", s.id, formatBool(enabled), offsetHz)
	return s.apply(ctx, cmd, map[string]any{"ritEnabled": enabled, "ritOffset": offsetHz})
}

// SetXIT enables/disables transmit incremental tuning and sets its offset.
func (s *Slice) SetXIT(ctx context.Context, enabled bool, offsetHz int) error {
	cmd := fmt.Sprintf("slice set %s xit_on=%s xit_freq=%d", s.id, formatBool(enabled), offsetHz)
	return s.apply(ctx, cmd, map[string]any{"xitEnabled": enabled, "xitOffset": offsetHz})
}

// SetDSP toggles one DSP stage (noise blanker, noise reduction, ANF, ...)
// by its wire key ("nb", "nr", "anf", ...) and level (0..100, clamped).
func (s *Slice) SetDSP(ctx context.Context, key string, enabled bool, level int) error {
	level = clampLevel(level)
	cmd := fmt.Sprintf("slice set %s %s=%s %s_level=%d", s.id, key, formatBool(enabled), key, level)
	return s.apply(ctx, cmd, map[string]any{"dsp." + key: store.DSPToggle{Enabled: enabled, Level: level}})
}

// SetTXAntenna changes the slice's transmit antenna port.
func (s *Slice) SetTXAntenna(ctx context.Context, ant string) error {
	cmd := fmt.Sprintf("slice set %s txant=%s", s.id, ant)
	return s.apply(ctx, cmd, map[string]any{"txAnt": ant})
}

// SetDAXChannel assigns (or clears, with 0) the slice's DAX channel number.
func (s *Slice) SetDAXChannel(ctx context.Context, channel int) error {
	cmd := fmt.Sprintf("slice set %s dax=%d", s.id, channel)
	return s.apply(ctx, cmd, map[string]any{"daxChannel": channel})
}

// SetTuneStep sets the frequency step, in Hz, used by relative tune commands.
func (s *Slice) SetTuneStep(ctx context.Context, stepHz int) error {
	cmd := fmt.Sprintf("slice set %s step=%d", s.id, stepHz)
	return s.apply(ctx, cmd, map[string]any{"tuneStep": stepHz})
}

// SetFMTone sets the FM repeater tone mode, tone value (Open Question (b):
// a named tone or a bare numeric token, either accepted verbatim), and
// deviation in Hz.
func (s *Slice) SetFMTone(ctx context.Context, mode, value string, deviationHz int) error {
	cmd := fmt.Sprintf("slice set %s fm_tone_mode=%s fm_tone_value=%s fm_deviation=%d", s.id, mode, value, deviationHz)
	return s.apply(ctx, cmd, map[string]any{
		"fmToneMode":  mode,
		"fmToneValue": value,
		"fmDeviation": deviationHz,
	})
}

// SetDiversity configures this slice's role in a diversity pair (§3): at
// most one of parent/child should be true, paired with another slice
// sharing the same index.
func (s *Slice) SetDiversity(ctx context.Context, parent, child bool, index int) error {
	cmd := fmt.Sprintf("slice set %s diversity_parent=%s diversity_child=%s diversity_index=%d",
		s.id, formatBool(parent), formatBool(child), index)
	return s.apply(ctx, cmd, map[string]any{
		"diversityParent": parent,
		"diversityChild":  child,
		"diversityIndex":  index,
	})
}

// SetLock enables/disables the slice's tuning lock.
func (s *Slice) SetLock(ctx context.Context, locked bool) error {
	cmd := fmt.Sprintf("slice set %s lock=%s", s.id, formatBool(locked))
	return s.apply(ctx, cmd, map[string]any{"locked": locked})
}

// Remove tears down the slice.
func (s *Slice) Remove(ctx context.Context) error {
	return s.session.Command(ctx, fmt.Sprintf("slice remove %s", s.id))
}
