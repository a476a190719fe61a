package store

// Patch methods are the store-side half of the optimistic write path
// (§4.5, §9 "optimistic state is not a separate layer"). A controller
// calls Patch*before* sending the command, to reflect the new value
// immediately; if the command is later rejected, the controller resyncs by
// re-subscribing, and the resulting status frame's Apply call restores
// authoritative state. There is no separate shadow/optimistic copy: Patch
// writes directly into the same map Apply writes into.
//
// Every Patch method returns ok=false if the entity no longer exists, so
// the caller can surface a stale-entity error without the store needing to
// know about the session's error taxonomy.

// PatchSlice applies a local attribute update to slice id and returns the
// resulting change, or ok=false if the slice is gone.
func (s *Store) PatchSlice(id string, fields map[string]any) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = NormalizeID(id)
	prev, ok := s.slices[id]
	if !ok {
		return Change{}, false
	}
	next := cloneSlice(prev)
	diff := map[string]any{}
	for k, v := range fields {
		if applySliceField(next, k, v) {
			diff[k] = v
		}
	}
	s.slices[id] = next
	return Change{Kind: KindSlice, ID: id, Previous: prev, Next: next, Diff: diff}, true
}

func applySliceField(s *Slice, key string, v any) bool {
	switch key {
	case "frequencyMHz":
		f, ok := v.(float64)
		if !ok {
			return false
		}
		s.FrequencyMHz = CanonicalizeMHz(f)
	case "mode":
		s.Mode, _ = v.(string)
	case "filterLowHz":
		s.FilterLowHz, _ = v.(int)
	case "filterHighHz":
		s.FilterHighHz, _ = v.(int)
	case "rxAnt":
		s.RXAnt, _ = v.(string)
	case "txAnt":
		s.TXAnt, _ = v.(string)
	case "daxChannel":
		s.DAXChannel, _ = v.(int)
	case "agcMode":
		s.AGCMode, _ = v.(string)
	case "agcThreshold":
		n, _ := v.(int)
		s.AGCThreshold = clampInt(n, 0, 100)
	case "ritEnabled":
		s.RITEnabled, _ = v.(bool)
	case "ritOffset":
		s.RITOffset, _ = v.(int)
	case "xitEnabled":
		s.XITEnabled, _ = v.(bool)
	case "xitOffset":
		s.XITOffset, _ = v.(int)
	case "tuneStep":
		s.TuneStep, _ = v.(int)
	case "fmToneMode":
		s.FMToneMode, _ = v.(string)
	case "fmToneValue":
		s.FMToneValue, _ = v.(string)
	case "fmDeviation":
		s.FMDeviation, _ = v.(int)
	case "diversityParent":
		s.DiversityParent, _ = v.(bool)
	case "diversityChild":
		s.DiversityChild, _ = v.(bool)
	case "diversityIndex":
		s.DiversityIndex, _ = v.(int)
	case "locked":
		s.Locked, _ = v.(bool)
	default:
		if toggle, ok := v.(DSPToggle); ok {
			name, found := "", false
			for _, d := range dspKeys {
				if "dsp."+d == key {
					name, found = d, true
					break
				}
			}
			if found {
				s.DSP[name] = toggle
				return true
			}
		}
		return false
	}
	return true
}

// PatchPanadapter applies a local attribute update to panadapter id.
func (s *Store) PatchPanadapter(id string, fields map[string]any) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = NormalizeID(id)
	prev, ok := s.pans[id]
	if !ok {
		return Change{}, false
	}
	next := clonePanadapter(prev)
	diff := map[string]any{}
	for k, v := range fields {
		switch k {
		case "centerFrequencyMHz":
			f, ok := v.(float64)
			if !ok {
				continue
			}
			next.CenterFrequencyMHz = CanonicalizeMHz(f)
		case "bandwidthMHz":
			f, ok := v.(float64)
			if !ok {
				continue
			}
			next.BandwidthMHz = CanonicalizeMHz(f)
		case "lowDbm":
			next.LowDbm, _ = v.(float64)
		case "highDbm":
			next.HighDbm, _ = v.(float64)
		case "widthPx":
			next.WidthPx, _ = v.(int)
		case "heightPx":
			next.HeightPx, _ = v.(int)
		case "rfGain":
			next.RFGain, _ = v.(int)
		default:
			continue
		}
		diff[k] = v
	}
	s.pans[id] = next
	return Change{Kind: KindPanadapter, ID: id, Previous: prev, Next: next, Diff: diff}, true
}

// PatchWaterfall applies a local attribute update to waterfall id.
func (s *Store) PatchWaterfall(id string, fields map[string]any) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = NormalizeID(id)
	prev, ok := s.waterfalls[id]
	if !ok {
		return Change{}, false
	}
	next := cloneWaterfall(prev)
	diff := map[string]any{}
	for k, v := range fields {
		switch k {
		case "colorGradient":
			g, ok := v.([]string)
			if !ok {
				continue
			}
			next.ColorGradient = g
		case "lineSpeed":
			next.LineSpeed, _ = v.(int)
		case "autoBlack":
			next.AutoBlack, _ = v.(bool)
		case "colorGain":
			n, _ := v.(int)
			next.ColorGain = clampInt(n, 0, 100)
		default:
			continue
		}
		diff[k] = v
	}
	s.waterfalls[id] = next
	return Change{Kind: KindWaterfall, ID: id, Previous: prev, Next: next, Diff: diff}, true
}

// PatchRadio applies a local attribute update to the radio singleton.
func (s *Store) PatchRadio(fields map[string]any) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.radio == nil {
		return Change{}, false
	}
	prev := s.radio
	next := cloneRadio(prev)
	diff := map[string]any{}
	for k, v := range fields {
		switch k {
		case "nickname":
			next.Nickname, _ = v.(string)
		case "callsign":
			next.Callsign, _ = v.(string)
		default:
			continue
		}
		diff[k] = v
	}
	s.radio = next
	return Change{Kind: KindRadio, ID: "", Previous: prev, Next: next, Diff: diff}, true
}
