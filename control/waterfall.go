package control

import (
	"context"
	"fmt"
	"strings"

	"github.com/cwsl/radiosession"
)

// Waterfall is a thin façade over one waterfall display.
type Waterfall struct {
	session *radiosession.Session
	id      string
}

// NewWaterfall wraps waterfall id for command issuance.
func NewWaterfall(session *radiosession.Session, id string) *Waterfall {
	return &Waterfall{session: session, id: id}
}

func (w *Waterfall) resync(ctx context.Context) { _ = w.session.Command(ctx, "sub pan all") }

func (w *Waterfall) apply(ctx context.Context, cmd string, fields map[string]any) error {
	w.session.Store().PatchWaterfall(w.id, fields)
	if err := w.session.Command(ctx, cmd); err != nil {
		w.resync(ctx)
		return err
	}
	return nil
}

// SetGradient sets the ordered list of color-stop names.
func (w *Waterfall) SetGradient(ctx context.Context, stops []string) error {
	cmd := fmt.Sprintf("display waterfall set %s gradient=%s", w.id, strings.Join(stops, ","))
	return w.apply(ctx, cmd, map[string]any{"colorGradient": stops})
}

// SetLineSpeed sets lines rendered per second.
func (w *Waterfall) SetLineSpeed(ctx context.Context, linesPerSec int) error {
	cmd := fmt.Sprintf("display waterfall set %s line_speed=%d", w.id, linesPerSec)
	return w.apply(ctx, cmd, map[string]any{"lineSpeed": linesPerSec})
}

// SetAutoBlack enables/disables automatic black-level tracking.
func (w *Waterfall) SetAutoBlack(ctx context.Context, enabled bool) error {
	cmd := fmt.Sprintf("display waterfall set %s auto_black=%s", w.id, formatBool(enabled))
	return w.apply(ctx, cmd, map[string]any{"autoBlack": enabled})
}

// SetColorGain sets the waterfall color gain (0..100, clamped).
func (w *Waterfall) SetColorGain(ctx context.Context, gain int) error {
	gain = clampLevel(gain)
	cmd := fmt.Sprintf("display waterfall set %s color_gain=%d", w.id, gain)
	return w.apply(ctx, cmd, map[string]any{"colorGain": gain})
}
