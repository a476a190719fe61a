package store

// GuiClient identifies & tracks ownership of a remote UI attached to the
// same radio (§3).
type GuiClient struct {
	Handle string

	Station              string
	Program              string
	IP                   string
	IsOwnedByLocalClient bool

	Raw map[string]string
}

func cloneGuiClient(c *GuiClient) *GuiClient {
	if c == nil {
		return &GuiClient{Raw: map[string]string{}}
	}
	cp := *c
	cp.Raw = make(map[string]string, len(c.Raw))
	for k, v := range c.Raw {
		cp.Raw[k] = v
	}
	return &cp
}

func parseGuiClient(id string, attrs map[string]string, prev *GuiClient) (*GuiClient, map[string]any, map[string]string, []error) {
	next := cloneGuiClient(prev)
	next.Handle = id
	rawDiff := map[string]string{}
	set := func(k, v string) { rawDiff[k] = v; next.Raw[k] = v }

	for k, v := range attrs {
		set(k, v)
		switch k {
		case "station":
			next.Station = v
		case "program":
			next.Program = v
		case "ip":
			next.IP = v
		}
	}

	return next, diffGuiClient(prev, next), rawDiff, nil
}

// diffGuiClient reports every field that changed between prev and next. A
// nil prev (entity creation) is treated as a zero-valued GuiClient, so the
// full new snapshot is reported rather than a hand-picked subset.
func diffGuiClient(prev, next *GuiClient) map[string]any {
	if prev == nil {
		prev = &GuiClient{}
	}
	diff := map[string]any{}
	if prev.Station != next.Station {
		diff["station"] = next.Station
	}
	if prev.Program != next.Program {
		diff["program"] = next.Program
	}
	if prev.IP != next.IP {
		diff["ip"] = next.IP
	}
	if prev.IsOwnedByLocalClient != next.IsOwnedByLocalClient {
		diff["isOwnedByLocalClient"] = next.IsOwnedByLocalClient
	}
	return diff
}
