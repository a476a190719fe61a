package store

import (
	"maps"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// ATUState captures the antenna tuning unit's reported state.
type ATUState struct {
	Present  bool
	Enabled  bool
	Tuning   bool
	Memories bool
	Status   string
}

// InterlockState captures the transmit permission state machine (§GLOSSARY).
type InterlockState struct {
	State      string // RECEIVE, READY, NOT_READY, PTT_REQUESTED, TRANSMITTING, TX_FAULT, ...
	Source     string
	Reason     string
	TXAllowed  bool
	TXDelayMs  int
}

// GPSState captures GPS install/lock status.
type GPSState struct {
	Installed bool
	Locked    bool
	Latitude  float64
	Longitude float64
	Altitude  float64
	Satellites int
}

// Radio is the singleton entity describing the transceiver itself (§3).
type Radio struct {
	Model     string
	Serial    string
	Callsign  string
	Nickname  string

	// Firmware versions by subsystem ("smartsdr", "gui", "mcu", ...).
	Versions map[string]string

	Network struct {
		IP      string
		Gateway string
		Netmask string
		DHCP    bool
	}

	ATU       ATUState
	Interlock InterlockState
	OscillatorSource string
	GPS       GPSState

	AntennaList []string
	Profiles    map[string][]string // profile kind -> names ("global", "tx", "mic", "display")
	LogModules  []string

	// FilterSharpness is per-demod-mode, 0..3.
	FilterSharpness map[string]int

	Raw map[string]string
}

func cloneRadio(r *Radio) *Radio {
	if r == nil {
		r = &Radio{}
	}
	cp := *r
	cp.Versions = cloneStringMap(r.Versions)
	cp.AntennaList = append([]string(nil), r.AntennaList...)
	cp.Profiles = make(map[string][]string, len(r.Profiles))
	for k, v := range r.Profiles {
		cp.Profiles[k] = append([]string(nil), v...)
	}
	cp.LogModules = append([]string(nil), r.LogModules...)
	cp.FilterSharpness = cloneIntMap(r.FilterSharpness)
	cp.Raw = cloneStringMap(r.Raw)
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// VersionAtLeast reports whether the named subsystem's firmware version is
// >= min, using semantic version comparison. Returns false if the version
// is missing or unparsable (conservative: treat as not supported).
func (r *Radio) VersionAtLeast(subsystem, min string) bool {
	raw, ok := r.Versions[subsystem]
	if !ok {
		return false
	}
	have, err := goversion.NewVersion(raw)
	if err != nil {
		return false
	}
	want, err := goversion.NewVersion(min)
	if err != nil {
		return false
	}
	return have.GreaterThanOrEqual(want)
}

func parseRadioScope(scope string, attrs map[string]string, prev *Radio) (*Radio, map[string]any, map[string]string, []error) {
	next := cloneRadio(prev)
	var errs []error
	rawDiff := map[string]string{}
	set := func(k, v string) { rawDiff[k] = v; next.Raw[scope+"."+k] = v }

	switch scope {
	case "radio":
		for k, v := range attrs {
			set(k, v)
			switch {
			case k == "model":
				next.Model = v
			case k == "serial":
				next.Serial = v
			case k == "callsign":
				next.Callsign = v
			case k == "nickname":
				next.Nickname = v
			case k == "ip":
				next.Network.IP = v
			case k == "gateway":
				next.Network.Gateway = v
			case k == "netmask":
				next.Network.Netmask = v
			case k == "dhcp":
				b, err := parseBool(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				next.Network.DHCP = b
			case k == "oscillator_source":
				next.OscillatorSource = v
			case k == "ant_list":
				next.AntennaList = parseCSV(v)
			case strings.HasPrefix(k, "version_"):
				next.Versions[strings.TrimPrefix(k, "version_")] = v
			case strings.HasPrefix(k, "filter_sharpness_"):
				mode := strings.TrimPrefix(k, "filter_sharpness_")
				n, err := parseInt(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				next.FilterSharpness[mode] = clampInt(n, 0, 3)
			case strings.HasPrefix(k, "profile_"):
				kind := strings.TrimPrefix(k, "profile_")
				next.Profiles[kind] = splitProfileList(v)
			}
		}
	case "atu":
		for k, v := range attrs {
			set(k, v)
			switch k {
			case "present":
				b, _ := parseBool(k, v)
				next.ATU.Present = b
			case "enabled":
				b, _ := parseBool(k, v)
				next.ATU.Enabled = b
			case "tuning":
				b, _ := parseBool(k, v)
				next.ATU.Tuning = b
			case "memories_enabled":
				b, _ := parseBool(k, v)
				next.ATU.Memories = b
			case "status":
				next.ATU.Status = v
			}
		}
	case "interlock":
		for k, v := range attrs {
			set(k, v)
			switch k {
			case "state":
				next.Interlock.State = v
			case "source":
				next.Interlock.Source = v
			case "reason":
				next.Interlock.Reason = v
			case "tx_allowed":
				b, _ := parseBool(k, v)
				next.Interlock.TXAllowed = b
			case "tx_delay":
				n, err := parseInt(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				next.Interlock.TXDelayMs = n
			}
		}
	case "gps":
		for k, v := range attrs {
			set(k, v)
			switch k {
			case "installed":
				b, _ := parseBool(k, v)
				next.GPS.Installed = b
			case "locked":
				b, _ := parseBool(k, v)
				next.GPS.Locked = b
			case "lat":
				f, err := parseFloat(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				next.GPS.Latitude = f
			case "lon":
				f, err := parseFloat(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				next.GPS.Longitude = f
			case "altitude":
				f, err := parseFloat(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				next.GPS.Altitude = f
			case "satellites":
				n, err := parseInt(k, v)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				next.GPS.Satellites = n
			}
		}
	case "log":
		for k, v := range attrs {
			set(k, v)
			if k == "modules" {
				next.LogModules = parseCSV(v)
			}
		}
	}

	return next, diffRadio(prev, next), rawDiff, errs
}

func splitProfileList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, unescapeProfileName(p))
	}
	return out
}

// diffRadio reports every field that changed between prev and next. A nil
// prev (entity creation) is treated as a zero-valued Radio, so the full new
// snapshot is reported rather than a hand-picked subset.
func diffRadio(prev, next *Radio) map[string]any {
	if prev == nil {
		prev = &Radio{}
	}
	diff := map[string]any{}
	if prev.Model != next.Model {
		diff["model"] = next.Model
	}
	if prev.Serial != next.Serial {
		diff["serial"] = next.Serial
	}
	if prev.Callsign != next.Callsign {
		diff["callsign"] = next.Callsign
	}
	if prev.Nickname != next.Nickname {
		diff["nickname"] = next.Nickname
	}
	if prev.OscillatorSource != next.OscillatorSource {
		diff["oscillatorSource"] = next.OscillatorSource
	}
	if prev.Network != next.Network {
		diff["network"] = next.Network
	}
	if prev.ATU != next.ATU {
		diff["atu"] = next.ATU
	}
	if prev.Interlock != next.Interlock {
		diff["interlock"] = next.Interlock
	}
	if prev.GPS != next.GPS {
		diff["gps"] = next.GPS
	}
	if !stringsEqual(prev.AntennaList, next.AntennaList) {
		diff["antennaList"] = next.AntennaList
	}
	if !stringsEqual(prev.LogModules, next.LogModules) {
		diff["logModules"] = next.LogModules
	}
	if !maps.Equal(prev.Versions, next.Versions) {
		diff["versions"] = next.Versions
	}
	if !maps.EqualFunc(prev.Profiles, next.Profiles, stringsEqual) {
		diff["profiles"] = next.Profiles
	}
	if !maps.Equal(prev.FilterSharpness, next.FilterSharpness) {
		diff["filterSharpness"] = next.FilterSharpness
	}
	return diff
}
