package store

// Meter is a scalar sampled source (§3). The value stream is high-rate;
// the store retains only the latest sample.
type Meter struct {
	ID         string
	Source     string // SLC, COD, RAD, ...
	SourceIndex int
	Name       string
	Unit       string
	Low        float64
	High       float64
	FPS        int
	Value      float64

	Raw map[string]string
}

func cloneMeter(m *Meter) *Meter {
	if m == nil {
		return &Meter{Raw: map[string]string{}}
	}
	cp := *m
	cp.Raw = make(map[string]string, len(m.Raw))
	for k, v := range m.Raw {
		cp.Raw[k] = v
	}
	return &cp
}

func parseMeter(id string, attrs map[string]string, prev *Meter) (*Meter, map[string]any, map[string]string, []error) {
	next := cloneMeter(prev)
	next.ID = id
	var errs []error
	rawDiff := map[string]string{}
	set := func(k, v string) { rawDiff[k] = v; next.Raw[k] = v }

	for k, v := range attrs {
		set(k, v)
		switch k {
		case "src":
			next.Source = v
		case "num":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.SourceIndex = n
		case "nam":
			next.Name = v
		case "unit":
			next.Unit = v
		case "low":
			f, err := parseFloat(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.Low = f
		case "hi":
			f, err := parseFloat(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.High = f
		case "fps":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.FPS = n
		}
	}

	return next, diffMeter(prev, next), rawDiff, errs
}

// diffMeter reports every field that changed between prev and next. A nil
// prev (entity creation) is treated as a zero-valued Meter, so the full new
// snapshot is reported rather than a hand-picked subset.
func diffMeter(prev, next *Meter) map[string]any {
	if prev == nil {
		prev = &Meter{}
	}
	diff := map[string]any{}
	if prev.Source != next.Source {
		diff["source"] = next.Source
	}
	if prev.SourceIndex != next.SourceIndex {
		diff["sourceIndex"] = next.SourceIndex
	}
	if prev.Name != next.Name {
		diff["name"] = next.Name
	}
	if prev.Unit != next.Unit {
		diff["unit"] = next.Unit
	}
	if prev.Low != next.Low {
		diff["low"] = next.Low
	}
	if prev.High != next.High {
		diff["high"] = next.High
	}
	if prev.FPS != next.FPS {
		diff["fps"] = next.FPS
	}
	if prev.Value != next.Value {
		diff["value"] = next.Value
	}
	return diff
}

// ApplyMeterSample updates the latest value for a meter id from a
// data-plane meter packet. Returns the change if the value actually moved.
func (s *Store) ApplyMeterSample(id string, value float64) *Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.meters[id]
	next := cloneMeter(prev)
	next.ID = id
	if prev != nil && prev.Value == value {
		return nil
	}
	next.Value = value
	s.meters[id] = next

	var prevAny any
	if prev != nil {
		prevAny = prev
	}
	return &Change{
		Kind: KindMeter, ID: id, Previous: prevAny, Next: next,
		Diff: map[string]any{"value": value},
	}
}
