package store

// Panadapter is a panoramic spectrum window assigned a streamId (§3).
type Panadapter struct {
	StreamID string

	CenterFrequencyMHz float64
	BandwidthMHz       float64
	LowDbm             float64
	HighDbm            float64
	WidthPx            int
	HeightPx           int
	WaterfallStreamID  string
	RFGain             int

	// Xvtr is preserved verbatim; Open Question (a): its meaning is
	// underspecified, so it is never interpreted.
	Xvtr string

	Raw map[string]string
}

func clonePanadapter(p *Panadapter) *Panadapter {
	if p == nil {
		return &Panadapter{Raw: map[string]string{}}
	}
	cp := *p
	cp.Raw = make(map[string]string, len(p.Raw))
	for k, v := range p.Raw {
		cp.Raw[k] = v
	}
	return &cp
}

func parsePanadapter(id string, attrs map[string]string, prev *Panadapter) (*Panadapter, map[string]any, map[string]string, []error) {
	next := clonePanadapter(prev)
	next.StreamID = id
	var errs []error
	rawDiff := map[string]string{}
	set := func(k, v string) { rawDiff[k] = v; next.Raw[k] = v }

	for k, v := range attrs {
		set(k, v)
		switch k {
		case "center_freq":
			f, err := ParseMHz(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.CenterFrequencyMHz = f
		case "bandwidth":
			f, err := ParseMHz(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.BandwidthMHz = f
		case "min_dbm":
			f, err := parseFloat(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.LowDbm = f
		case "max_dbm":
			f, err := parseFloat(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.HighDbm = f
		case "x_pixels", "xpixels":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.WidthPx = n
		case "y_pixels", "ypixels":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.HeightPx = n
		case "waterfall":
			next.WaterfallStreamID = NormalizeID(v)
		case "rfgain":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.RFGain = n
		case "xvtr":
			next.Xvtr = v
		}
	}

	return next, diffPanadapter(prev, next), rawDiff, errs
}

// diffPanadapter reports every field that changed between prev and next. A
// nil prev (entity creation) is treated as a zero-valued Panadapter, so the
// full new snapshot is reported rather than a hand-picked subset.
func diffPanadapter(prev, next *Panadapter) map[string]any {
	if prev == nil {
		prev = &Panadapter{}
	}
	diff := map[string]any{}
	if prev.CenterFrequencyMHz != next.CenterFrequencyMHz {
		diff["centerFrequencyMHz"] = next.CenterFrequencyMHz
	}
	if prev.BandwidthMHz != next.BandwidthMHz {
		diff["bandwidthMHz"] = next.BandwidthMHz
	}
	if prev.LowDbm != next.LowDbm {
		diff["lowDbm"] = next.LowDbm
	}
	if prev.HighDbm != next.HighDbm {
		diff["highDbm"] = next.HighDbm
	}
	if prev.WidthPx != next.WidthPx {
		diff["widthPx"] = next.WidthPx
	}
	if prev.HeightPx != next.HeightPx {
		diff["heightPx"] = next.HeightPx
	}
	if prev.WaterfallStreamID != next.WaterfallStreamID {
		diff["waterfallStreamId"] = next.WaterfallStreamID
	}
	if prev.RFGain != next.RFGain {
		diff["rfGain"] = next.RFGain
	}
	if prev.Xvtr != next.Xvtr {
		diff["xvtr"] = next.Xvtr
	}
	return diff
}
