// Package store implements the reactive radio state store: typed entity
// snapshots fed by status frames, diffed against the previous snapshot, and
// published as change records. Every entity is an immutable, frozen value;
// a mutation always produces a new value rather than mutating in place.
package store

// EntityKind identifies which typed collection a Change belongs to.
type EntityKind string

const (
	KindRadio       EntityKind = "radio"
	KindSlice       EntityKind = "slice"
	KindPanadapter  EntityKind = "panadapter"
	KindWaterfall   EntityKind = "waterfall"
	KindMeter       EntityKind = "meter"
	KindAudioStream EntityKind = "audio_stream"
	KindGuiClient   EntityKind = "gui_client"
	KindLicense     EntityKind = "license"
	KindOther       EntityKind = "other"
)

// Change is the atomic unit published by the store on every status frame
// that produces an observable difference. Previous/Next are frozen
// references; Diff carries the typed fields that changed (nil for a field
// that didn't change), RawDiff carries the same change by wire attribute
// name for consumers that want the untyped view.
type Change struct {
	Kind     EntityKind
	ID       string
	Previous any
	Next     any
	Diff     map[string]any
	RawDiff  map[string]string
	Removed  bool
}
