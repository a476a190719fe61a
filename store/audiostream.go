package store

// AudioStream describes a DAX/remote-audio stream instance (§3).
type AudioStream struct {
	ID string

	Type        string // remote_audio_rx, remote_audio_tx, dax_rx, dax_tx, dax_mic
	Compression string // none, opus
	SampleRateHz int
	Channels     int
	ClientHandle string
	DAXChannel   *int

	Raw map[string]string
}

func cloneAudioStream(a *AudioStream) *AudioStream {
	if a == nil {
		return &AudioStream{Raw: map[string]string{}}
	}
	cp := *a
	if a.DAXChannel != nil {
		v := *a.DAXChannel
		cp.DAXChannel = &v
	}
	cp.Raw = make(map[string]string, len(a.Raw))
	for k, v := range a.Raw {
		cp.Raw[k] = v
	}
	return &cp
}

func parseAudioStream(id string, attrs map[string]string, prev *AudioStream) (*AudioStream, map[string]any, map[string]string, []error) {
	next := cloneAudioStream(prev)
	next.ID = id
	var errs []error
	rawDiff := map[string]string{}
	set := func(k, v string) { rawDiff[k] = v; next.Raw[k] = v }

	for k, v := range attrs {
		set(k, v)
		switch k {
		case "type":
			next.Type = v
		case "compression":
			next.Compression = v
		case "rate":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.SampleRateHz = n
		case "channels":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.Channels = n
		case "client_handle":
			next.ClientHandle = NormalizeID(v)
		case "dax_channel":
			n, err := parseInt(k, v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			next.DAXChannel = &n
		}
	}

	return next, diffAudioStream(prev, next), rawDiff, errs
}

// diffAudioStream reports every field that changed between prev and next. A
// nil prev (entity creation) is treated as a zero-valued AudioStream, so the
// full new snapshot is reported rather than a hand-picked subset.
func diffAudioStream(prev, next *AudioStream) map[string]any {
	if prev == nil {
		prev = &AudioStream{}
	}
	diff := map[string]any{}
	if prev.Type != next.Type {
		diff["type"] = next.Type
	}
	if prev.Compression != next.Compression {
		diff["compression"] = next.Compression
	}
	if prev.SampleRateHz != next.SampleRateHz {
		diff["sampleRateHz"] = next.SampleRateHz
	}
	if prev.Channels != next.Channels {
		diff["channels"] = next.Channels
	}
	if prev.ClientHandle != next.ClientHandle {
		diff["clientHandle"] = next.ClientHandle
	}
	prevDax, nextDax := -1, -1
	if prev.DAXChannel != nil {
		prevDax = *prev.DAXChannel
	}
	if next.DAXChannel != nil {
		nextDax = *next.DAXChannel
	}
	if prevDax != nextDax {
		diff["daxChannel"] = next.DAXChannel
	}
	return diff
}
