package store

import (
	"log"
	"sync"
)

// StatusFrame is the parsed form of one inbound "S" line: scope plus
// identifier plus attribute set (§6). Scope is the wire scope token
// ("slice", "display pan", "meter", "radio", "atu", ...); Identifier is the
// entity id (empty for the handful of scopes that are session-wide).
type StatusFrame struct {
	Handle     string
	Scope      string
	Identifier string
	Attrs      map[string]string
}

// Store is the process-wide, session-scoped reactive state store (§4.2). A
// single Store belongs to exactly one Session; it owns every entity
// snapshot exclusively, and hands out frozen references only.
type Store struct {
	mu sync.RWMutex

	radio      *Radio
	slices     map[string]*Slice
	pans       map[string]*Panadapter
	waterfalls map[string]*Waterfall
	meters     map[string]*Meter
	audio      map[string]*AudioStream
	guiClients map[string]*GuiClient
	licenses   map[string]*LicenseEntry
	other      map[string]map[string]string // scope+"/"+id -> raw attrs

	localHandle string

	loggedUnknown map[string]bool // "kind/id/key" seen-once set
	logger        *log.Logger
}

// New creates an empty store. A nil logger defaults to log.Default().
func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		slices:        map[string]*Slice{},
		pans:          map[string]*Panadapter{},
		waterfalls:    map[string]*Waterfall{},
		meters:        map[string]*Meter{},
		audio:         map[string]*AudioStream{},
		guiClients:    map[string]*GuiClient{},
		licenses:      map[string]*LicenseEntry{},
		other:         map[string]map[string]string{},
		loggedUnknown: map[string]bool{},
		logger:        logger,
	}
}

// Apply folds one status frame into zero or more change records. It is
// pure in the sense required by §8: applying the same frame twice produces
// no change the second time, because the typed diff against the already
// current snapshot is empty.
func (s *Store) Apply(frame StatusFrame) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind, id := s.classify(frame)
	s.warnUnknown(kind, id, frame.Attrs)

	if removed, _ := parseBool("removed", frame.Attrs["removed"]); removed {
		return s.remove(kind, id)
	}

	switch kind {
	case KindSlice:
		prev := s.slices[id]
		next, diff, rawDiff, errs := parseSlice(id, frame.Attrs, prev)
		s.logParseErrors(KindSlice, id, errs)
		if len(diff) == 0 && prev != nil {
			return nil
		}
		next.IsOwnedByLocalClient = next.OwnerHandle != "" && next.OwnerHandle == s.localHandle
		s.slices[id] = next
		return []Change{{Kind: KindSlice, ID: id, Previous: ptrOrNil(prev), Next: next, Diff: diff, RawDiff: rawDiff}}

	case KindPanadapter:
		prev := s.pans[id]
		next, diff, rawDiff, errs := parsePanadapter(id, frame.Attrs, prev)
		s.logParseErrors(KindPanadapter, id, errs)
		if len(diff) == 0 && prev != nil {
			return nil
		}
		s.pans[id] = next
		return []Change{{Kind: KindPanadapter, ID: id, Previous: ptrOrNil(prev), Next: next, Diff: diff, RawDiff: rawDiff}}

	case KindWaterfall:
		prev := s.waterfalls[id]
		next, diff, rawDiff, errs := parseWaterfall(id, frame.Attrs, prev)
		s.logParseErrors(KindWaterfall, id, errs)
		if len(diff) == 0 && prev != nil {
			return nil
		}
		s.waterfalls[id] = next
		return []Change{{Kind: KindWaterfall, ID: id, Previous: ptrOrNil(prev), Next: next, Diff: diff, RawDiff: rawDiff}}

	case KindMeter:
		prev := s.meters[id]
		next, diff, rawDiff, errs := parseMeter(id, frame.Attrs, prev)
		s.logParseErrors(KindMeter, id, errs)
		if len(diff) == 0 && prev != nil {
			return nil
		}
		s.meters[id] = next
		return []Change{{Kind: KindMeter, ID: id, Previous: ptrOrNil(prev), Next: next, Diff: diff, RawDiff: rawDiff}}

	case KindAudioStream:
		prev := s.audio[id]
		next, diff, rawDiff, errs := parseAudioStream(id, frame.Attrs, prev)
		s.logParseErrors(KindAudioStream, id, errs)
		if len(diff) == 0 && prev != nil {
			return nil
		}
		s.audio[id] = next
		return []Change{{Kind: KindAudioStream, ID: id, Previous: ptrOrNil(prev), Next: next, Diff: diff, RawDiff: rawDiff}}

	case KindGuiClient:
		prev := s.guiClients[id]
		next, diff, rawDiff, errs := parseGuiClient(id, frame.Attrs, prev)
		s.logParseErrors(KindGuiClient, id, errs)
		next.IsOwnedByLocalClient = id != "" && id == s.localHandle
		wasOwned := prev != nil && prev.IsOwnedByLocalClient
		if next.IsOwnedByLocalClient != wasOwned {
			diff["isOwnedByLocalClient"] = next.IsOwnedByLocalClient
		}
		if len(diff) == 0 && prev != nil {
			return nil
		}
		s.guiClients[id] = next
		return []Change{{Kind: KindGuiClient, ID: id, Previous: ptrOrNil(prev), Next: next, Diff: diff, RawDiff: rawDiff}}

	case KindLicense:
		prev := s.licenses[id]
		next, diff, rawDiff, errs := parseLicense(id, frame.Attrs, prev)
		s.logParseErrors(KindLicense, id, errs)
		if len(diff) == 0 && prev != nil {
			return nil
		}
		s.licenses[id] = next
		return []Change{{Kind: KindLicense, ID: id, Previous: ptrOrNil(prev), Next: next, Diff: diff, RawDiff: rawDiff}}

	case KindRadio:
		prev := s.radio
		next, diff, rawDiff, errs := parseRadioScope(frame.Scope, frame.Attrs, prev)
		s.logParseErrors(KindRadio, "", errs)
		if len(diff) == 0 && prev != nil {
			return nil
		}
		s.radio = next
		return []Change{{Kind: KindRadio, ID: "", Previous: ptrOrNil(prev), Next: next, Diff: diff, RawDiff: rawDiff}}

	default:
		// Scopes with no typed entity in §3 (amplifier, xvtr, memories,
		// daxiq, dax, cwx, apd, usb_cable, tnf, spot): retained verbatim
		// per-scope/id, never interpreted. See DESIGN.md.
		key := frame.Scope + "/" + frame.Identifier
		merged := s.other[key]
		if merged == nil {
			merged = map[string]string{}
		} else {
			merged = cloneStringMap(merged)
		}
		rawDiff := map[string]string{}
		for k, v := range frame.Attrs {
			if merged[k] != v {
				rawDiff[k] = v
			}
			merged[k] = v
		}
		if len(rawDiff) == 0 && s.other[key] != nil {
			return nil
		}
		s.other[key] = merged
		return []Change{{Kind: KindOther, ID: key, Next: merged, RawDiff: rawDiff, Diff: map[string]any{}}}
	}
}

// classify maps a wire scope to an entity kind and the entity id. Scopes
// carrying radio-singleton substate ("radio", "atu", "interlock", "gps",
// "log") all route to KindRadio with an empty id.
func (s *Store) classify(frame StatusFrame) (EntityKind, string) {
	switch frame.Scope {
	case "slice":
		return KindSlice, NormalizeID(frame.Identifier)
	case "display pan":
		return KindPanadapter, NormalizeID(frame.Identifier)
	case "display waterfall":
		return KindWaterfall, NormalizeID(frame.Identifier)
	case "meter":
		return KindMeter, frame.Identifier
	case "audio_stream":
		return KindAudioStream, NormalizeID(frame.Identifier)
	case "client":
		return KindGuiClient, NormalizeID(frame.Identifier)
	case "license":
		return KindLicense, frame.Identifier
	case "radio", "atu", "interlock", "gps", "log":
		return KindRadio, ""
	default:
		return KindOther, frame.Identifier
	}
}

func (s *Store) remove(kind EntityKind, id string) []Change {
	switch kind {
	case KindSlice:
		prev, ok := s.slices[id]
		if !ok {
			return nil
		}
		delete(s.slices, id)
		return []Change{{Kind: KindSlice, ID: id, Previous: prev, Removed: true}}
	case KindPanadapter:
		prev, ok := s.pans[id]
		if !ok {
			return nil
		}
		delete(s.pans, id)
		return []Change{{Kind: KindPanadapter, ID: id, Previous: prev, Removed: true}}
	case KindWaterfall:
		prev, ok := s.waterfalls[id]
		if !ok {
			return nil
		}
		delete(s.waterfalls, id)
		return []Change{{Kind: KindWaterfall, ID: id, Previous: prev, Removed: true}}
	case KindAudioStream:
		prev, ok := s.audio[id]
		if !ok {
			return nil
		}
		delete(s.audio, id)
		return []Change{{Kind: KindAudioStream, ID: id, Previous: prev, Removed: true}}
	case KindGuiClient:
		prev, ok := s.guiClients[id]
		if !ok {
			return nil
		}
		delete(s.guiClients, id)
		return []Change{{Kind: KindGuiClient, ID: id, Previous: prev, Removed: true}}
	case KindMeter:
		prev, ok := s.meters[id]
		if !ok {
			return nil
		}
		delete(s.meters, id)
		return []Change{{Kind: KindMeter, ID: id, Previous: prev, Removed: true}}
	}
	return nil
}

func (s *Store) warnUnknown(kind EntityKind, id string, attrs map[string]string) {
	for k := range attrs {
		if isRecognizedKey(kind, k) || k == "removed" {
			continue
		}
		key := string(kind) + "/" + id + "/" + k
		if s.loggedUnknown[key] {
			continue
		}
		s.loggedUnknown[key] = true
		s.logger.Printf("radiosession: unrecognized attribute %q for %s %s (retained)", k, kind, id)
	}
}

func (s *Store) logParseErrors(kind EntityKind, id string, errs []error) {
	for _, e := range errs {
		s.logger.Printf("radiosession: parse-error on %s %s: %v", kind, id, e)
	}
}

// ptrOrNil avoids the classic typed-nil-in-interface trap: a nil *T stored
// directly in an `any` is a non-nil interface, which would break
// Change.Previous == nil checks for newly created entities.
func ptrOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}
