package store

// recognizedKeys lists the wire attribute names each entity kind's parser
// understands. Store.Apply uses this only to decide, for logging purposes,
// whether an attribute was understood or merely retained in the raw bag —
// it never affects whether the attribute gets applied (unrecognized
// attributes are always retained verbatim, per §4.2 and §9).
var recognizedKeys = map[EntityKind]map[string]bool{
	KindSlice: setOf(
		"freq", "rf_frequency", "mode", "filter_lo", "filter_hi", "rxant", "txant",
		"dax", "agc_mode", "agc_threshold", "rit_on", "rit_freq", "xit_on", "xit_freq",
		"step", "record", "play", "fm_tone_mode", "fm_tone_value", "fm_deviation",
		"diversity_parent", "diversity_child", "diversity_index", "pan",
		"client_handle", "owner", "active", "lock", "removed",
		"anf", "anf_level", "apf", "apf_level", "wnb", "wnb_level", "nb", "nb_level",
		"nr", "nr_level", "nrl", "nrl_level", "anfl", "anfl_level", "nrs", "nrs_level",
		"nrf", "nrf_level", "rnn", "rnn_level", "anft", "anft_level", "esc", "esc_level",
	),
	KindPanadapter: setOf(
		"center_freq", "bandwidth", "min_dbm", "max_dbm", "x_pixels", "xpixels",
		"y_pixels", "ypixels", "waterfall", "rfgain", "xvtr", "removed",
	),
	KindWaterfall: setOf(
		"center_freq", "bandwidth", "x_pixels", "xpixels", "y_pixels", "ypixels",
		"gradient", "line_speed", "fps", "auto_black", "color_gain", "removed",
	),
	KindMeter: setOf("src", "num", "nam", "unit", "low", "hi", "fps", "removed"),
	KindAudioStream: setOf(
		"type", "compression", "rate", "channels", "client_handle", "dax_channel", "removed",
	),
	KindGuiClient: setOf("station", "program", "ip", "removed"),
	KindLicense:   setOf("enabled", "expires"),
	KindRadio: setOf(
		"model", "serial", "callsign", "nickname", "ip", "gateway", "netmask", "dhcp",
		"oscillator_source", "ant_list", "present", "enabled", "tuning",
		"memories_enabled", "status", "state", "source", "reason", "tx_allowed",
		"tx_delay", "installed", "locked", "lat", "lon", "altitude", "satellites", "modules",
	),
}

func setOf(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// isRecognizedKey reports whether key is in kind's recognized set; for the
// radio entity it additionally allows the dynamic "version_*",
// "filter_sharpness_*", "profile_*" attribute families.
func isRecognizedKey(kind EntityKind, key string) bool {
	if recognizedKeys[kind][key] {
		return true
	}
	if kind == KindRadio {
		for _, p := range []string{"version_", "filter_sharpness_", "profile_"} {
			if len(key) > len(p) && key[:len(p)] == p {
				return true
			}
		}
	}
	return false
}
