package control

import (
	"context"
	"fmt"

	"github.com/cwsl/radiosession"
	"github.com/cwsl/radiosession/store"
)

// Panadapter is a thin façade over one panadapter display.
type Panadapter struct {
	session *radiosession.Session
	id      string
}

// NewPanadapter wraps panadapter id for command issuance.
func NewPanadapter(session *radiosession.Session, id string) *Panadapter {
	return &Panadapter{session: session, id: id}
}

func (p *Panadapter) resync(ctx context.Context) { _ = p.session.Command(ctx, "sub pan all") }

func (p *Panadapter) apply(ctx context.Context, cmd string, fields map[string]any) error {
	p.session.Store().PatchPanadapter(p.id, fields)
	if err := p.session.Command(ctx, cmd); err != nil {
		p.resync(ctx)
		return err
	}
	return nil
}

// SetCenterFrequency recenters the display on mhz.
func (p *Panadapter) SetCenterFrequency(ctx context.Context, mhz float64) error {
	canon := store.CanonicalizeMHz(mhz)
	cmd := fmt.Sprintf("display pan set %s center=%s", p.id, formatMHz(canon))
	return p.apply(ctx, cmd, map[string]any{"centerFrequencyMHz": canon})
}

// SetBandwidth changes the display's visible span.
func (p *Panadapter) SetBandwidth(ctx context.Context, mhz float64) error {
	canon := store.CanonicalizeMHz(mhz)
	cmd := fmt.Sprintf("display pan set %s bandwidth=%s", p.id, formatMHz(canon))
	return p.apply(ctx, cmd, map[string]any{"bandwidthMHz": canon})
}

// SetLevels sets the display's dBm floor and ceiling.
func (p *Panadapter) SetLevels(ctx context.Context, lowDbm, highDbm float64) error {
	cmd := fmt.Sprintf("display pan set %s min_dbm=%.1f max_dbm=%.1f", p.id, lowDbm, highDbm)
	return p.apply(ctx, cmd, map[string]any{"lowDbm": lowDbm, "highDbm": highDbm})
}

// SetRFGain sets the front-end RF gain stage (0..100, clamped).
func (p *Panadapter) SetRFGain(ctx context.Context, gain int) error {
	gain = clampLevel(gain)
	cmd := fmt.Sprintf("display pan set %s rfgain=%d", p.id, gain)
	return p.apply(ctx, cmd, map[string]any{"rfGain": gain})
}

// SetSize sets the display's pixel dimensions.
func (p *Panadapter) SetSize(ctx context.Context, widthPx, heightPx int) error {
	cmd := fmt.Sprintf("display pan set %s xpixels=%d ypixels=%d", p.id, widthPx, heightPx)
	return p.apply(ctx, cmd, map[string]any{"widthPx": widthPx, "heightPx": heightPx})
}

// Remove tears down the panadapter (and, per §8, its companion waterfall).
func (p *Panadapter) Remove(ctx context.Context) error {
	return p.session.Command(ctx, fmt.Sprintf("display pan remove %s", p.id))
}
