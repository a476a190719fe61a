package store

import (
	"strings"
)

// DSPToggle is an enabled+level pair shared by the slice's battery of DSP
// features (ANF, APF, WNB, NB, NR, NRL, ANFL, NRS, NRF, RNN, ANFT, ESC).
type DSPToggle struct {
	Enabled bool
	Level   int
}

// dspKeys is the closed set of DSP toggle names recognized on a slice
// status line, each contributing a "<key>" and "<key>_level" attribute.
var dspKeys = []string{"anf", "apf", "wnb", "nb", "nr", "nrl", "anfl", "nrs", "nrf", "rnn", "anft", "esc"}

// Slice is a receiver channel. See spec §3.
type Slice struct {
	ID string

	FrequencyMHz float64
	Mode         string
	FilterLowHz  int
	FilterHighHz int
	RXAnt        string
	TXAnt        string
	DAXChannel   int
	AGCMode      string
	AGCThreshold int

	DSP map[string]DSPToggle

	RITEnabled bool
	RITOffset  int
	XITEnabled bool
	XITOffset  int
	TuneStep   int

	RecordEnabled   bool
	PlaybackEnabled bool

	// FM tone value: may be a string token or a numeric frequency
	// depending on mode (Open Question (b)); stored verbatim as string,
	// accepted as either on input.
	FMToneMode  string
	FMToneValue string
	FMDeviation int

	DiversityParent bool
	DiversityChild  bool
	DiversityIndex  int

	PanadapterStreamID string
	OwnerHandle        string
	Active             bool
	Locked             bool
	IsOwnedByLocalClient bool

	Raw map[string]string
}

func cloneSlice(s *Slice) *Slice {
	if s == nil {
		return &Slice{DSP: map[string]DSPToggle{}, Raw: map[string]string{}}
	}
	cp := *s
	cp.DSP = make(map[string]DSPToggle, len(s.DSP))
	for k, v := range s.DSP {
		cp.DSP[k] = v
	}
	cp.Raw = make(map[string]string, len(s.Raw))
	for k, v := range s.Raw {
		cp.Raw[k] = v
	}
	return &cp
}

// parseSlice folds one status frame's attrs onto prev (nil for a brand new
// slice), returning the new frozen snapshot, the typed diff (field name ->
// new value, only for fields that changed), the raw per-attribute diff, and
// any non-fatal per-attribute parse errors (the rest of the frame still
// applies).
func parseSlice(id string, attrs map[string]string, prev *Slice) (*Slice, map[string]any, map[string]string, []error) {
	next := cloneSlice(prev)
	next.ID = id
	var errs []error
	rawDiff := map[string]string{}

	set := func(k, v string) { rawDiff[k] = v; next.Raw[k] = v }

	for k, v := range attrs {
		set(k, v)
		switch {
		case k == "freq" || k == "rf_frequency":
			f, err := ParseMHz(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.FrequencyMHz = f
		case k == "mode":
			next.Mode = strings.ToLower(v)
		case k == "filter_lo":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.FilterLowHz = n
		case k == "filter_hi":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.FilterHighHz = n
		case k == "rxant":
			next.RXAnt = v
		case k == "txant":
			next.TXAnt = v
		case k == "dax":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.DAXChannel = n
		case k == "agc_mode":
			next.AGCMode = strings.ToLower(v)
		case k == "agc_threshold":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.AGCThreshold = clampInt(n, 0, 100)
		case k == "rit_on":
			b, err := parseBool(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.RITEnabled = b
		case k == "rit_freq":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.RITOffset = n
		case k == "xit_on":
			b, err := parseBool(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.XITEnabled = b
		case k == "xit_freq":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.XITOffset = n
		case k == "step":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.TuneStep = n
		case k == "record":
			b, err := parseBool(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.RecordEnabled = b
		case k == "play":
			b, err := parseBool(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.PlaybackEnabled = b
		case k == "fm_tone_mode":
			next.FMToneMode = v
		case k == "fm_tone_value":
			// Open Question (b): accept either a bare numeric token or a
			// named tone string; stored as string either way.
			next.FMToneValue = v
		case k == "fm_deviation":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.FMDeviation = n
		case k == "diversity_parent":
			b, err := parseBool(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.DiversityParent = b
		case k == "diversity_child":
			b, err := parseBool(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.DiversityChild = b
		case k == "diversity_index":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.DiversityIndex = n
		case k == "pan":
			next.PanadapterStreamID = NormalizeID(v)
		case k == "client_handle" || k == "owner":
			next.OwnerHandle = NormalizeID(v)
		case k == "active":
			b, err := parseBool(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.Active = b
		case k == "lock":
			b, err := parseBool(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.Locked = b
		case isDSPKey(k):
			name, isLevel := dspAttrName(k)
			cur := next.DSP[name]
			if isLevel {
				n, err := parseInt(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				cur.Level = clampInt(n, 0, 100)
			} else {
				b, err := parseBool(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				cur.Enabled = b
			}
			next.DSP[name] = cur
		default:
			// unknown attribute: retained in Raw above, not logged here
			// (the store layer logs once per key per entity).
		}
	}

	diff := diffSlice(prev, next)
	return next, diff, rawDiff, errs
}

func isDSPKey(k string) bool {
	_, ok := dspAttrName(k)
	return ok
}

// dspAttrName maps a wire attribute like "nr_level" or "anf" to its DSP
// toggle name and whether it is the level (vs the enabled flag).
func dspAttrName(k string) (name string, isLevel bool) {
	for _, d := range dspKeys {
		if k == d {
			return d, false
		}
		if k == d+"_level" {
			return d, true
		}
	}
	return "", false
}

// diffSlice reports every field that changed between prev and next. A nil
// prev (entity creation) is treated as a zero-valued Slice, so every
// populated field on next is reported rather than a hand-picked subset.
func diffSlice(prev, next *Slice) map[string]any {
	if prev == nil {
		prev = &Slice{}
	}
	diff := map[string]any{}
	if prev.FrequencyMHz != next.FrequencyMHz {
		diff["frequencyMHz"] = next.FrequencyMHz
	}
	if prev.Mode != next.Mode {
		diff["mode"] = next.Mode
	}
	if prev.FilterLowHz != next.FilterLowHz {
		diff["filterLowHz"] = next.FilterLowHz
	}
	if prev.FilterHighHz != next.FilterHighHz {
		diff["filterHighHz"] = next.FilterHighHz
	}
	if prev.RXAnt != next.RXAnt {
		diff["rxAnt"] = next.RXAnt
	}
	if prev.TXAnt != next.TXAnt {
		diff["txAnt"] = next.TXAnt
	}
	if prev.DAXChannel != next.DAXChannel {
		diff["daxChannel"] = next.DAXChannel
	}
	if prev.AGCMode != next.AGCMode {
		diff["agcMode"] = next.AGCMode
	}
	if prev.AGCThreshold != next.AGCThreshold {
		diff["agcThreshold"] = next.AGCThreshold
	}
	for k, v := range next.DSP {
		if prev.DSP[k] != v {
			diff["dsp."+k] = v
		}
	}
	if prev.RITEnabled != next.RITEnabled {
		diff["ritEnabled"] = next.RITEnabled
	}
	if prev.RITOffset != next.RITOffset {
		diff["ritOffset"] = next.RITOffset
	}
	if prev.XITEnabled != next.XITEnabled {
		diff["xitEnabled"] = next.XITEnabled
	}
	if prev.XITOffset != next.XITOffset {
		diff["xitOffset"] = next.XITOffset
	}
	if prev.TuneStep != next.TuneStep {
		diff["tuneStep"] = next.TuneStep
	}
	if prev.RecordEnabled != next.RecordEnabled {
		diff["recordEnabled"] = next.RecordEnabled
	}
	if prev.PlaybackEnabled != next.PlaybackEnabled {
		diff["playbackEnabled"] = next.PlaybackEnabled
	}
	if prev.FMToneMode != next.FMToneMode {
		diff["fmToneMode"] = next.FMToneMode
	}
	if prev.FMToneValue != next.FMToneValue {
		diff["fmToneValue"] = next.FMToneValue
	}
	if prev.FMDeviation != next.FMDeviation {
		diff["fmDeviation"] = next.FMDeviation
	}
	if prev.DiversityParent != next.DiversityParent {
		diff["diversityParent"] = next.DiversityParent
	}
	if prev.DiversityChild != next.DiversityChild {
		diff["diversityChild"] = next.DiversityChild
	}
	if prev.DiversityIndex != next.DiversityIndex {
		diff["diversityIndex"] = next.DiversityIndex
	}
	if prev.PanadapterStreamID != next.PanadapterStreamID {
		diff["panadapterStreamId"] = next.PanadapterStreamID
	}
	if prev.OwnerHandle != next.OwnerHandle {
		diff["ownerHandle"] = next.OwnerHandle
	}
	if prev.Active != next.Active {
		diff["active"] = next.Active
	}
	if prev.Locked != next.Locked {
		diff["locked"] = next.Locked
	}
	if prev.IsOwnedByLocalClient != next.IsOwnedByLocalClient {
		diff["isOwnedByLocalClient"] = next.IsOwnedByLocalClient
	}
	return diff
}

// CheckFilterInvariant enforces filterLow <= filterHigh (§3).
func (s *Slice) CheckFilterInvariant() bool {
	return s.FilterLowHz <= s.FilterHighHz
}
