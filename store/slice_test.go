package store

import (
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySliceCreateAndUpdate(t *testing.T) {
	s := New(log.Default())

	changes := s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{
		"freq": "14.250000", "mode": "USB", "filter_lo": "100", "filter_hi": "2900",
	}})
	require.Len(t, changes, 1)
	assert.Equal(t, KindSlice, changes[0].Kind)
	assert.Nil(t, changes[0].Previous)

	sl, ok := s.GetSlice("0")
	require.True(t, ok)
	assert.Equal(t, 14.25, sl.FrequencyMHz)
	assert.Equal(t, "usb", sl.Mode)
	assert.True(t, sl.CheckFilterInvariant())

	changes = s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"freq": "14.260000"}})
	require.Len(t, changes, 1)
	assert.NotNil(t, changes[0].Previous)
	assert.Equal(t, 14.26, changes[0].Diff["frequencyMHz"])
}

func TestApplySliceCreateDiffIncludesEveryPopulatedField(t *testing.T) {
	s := New(log.Default())
	changes := s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{
		"freq": "14.250000", "mode": "USB", "filter_lo": "100", "filter_hi": "2900", "rxant": "ANT1",
	}})
	require.Len(t, changes, 1)

	diff := changes[0].Diff
	assert.Equal(t, 14.25, diff["frequencyMHz"])
	assert.Equal(t, "usb", diff["mode"])
	assert.Equal(t, 100, diff["filterLowHz"])
	assert.Equal(t, 2900, diff["filterHighHz"])
	assert.Equal(t, "ANT1", diff["rxAnt"])
	// A new slice is diffed against a zero-valued Slice, so fields the frame
	// never mentioned still hold their zero value and are absent from the
	// diff; a consumer rebuilding state from Diff alone starts from zero.
	assert.NotContains(t, diff, "txAnt")
	assert.NotContains(t, diff, "agcMode")
}

func TestApplySliceIdempotent(t *testing.T) {
	s := New(log.Default())
	attrs := map[string]string{"freq": "14.250000", "mode": "USB"}
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: attrs})

	changes := s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: attrs})
	assert.Empty(t, changes, "re-applying an identical frame must produce no change")
}

func TestApplySliceRemoved(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"freq": "14.250000"}})

	changes := s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"removed": "1"}})
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Removed)

	_, ok := s.GetSlice("0")
	assert.False(t, ok)
}

func TestApplySliceDSPToggle(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{
		"nr": "1", "nr_level": "60",
	}})
	sl, ok := s.GetSlice("0")
	require.True(t, ok)
	assert.Equal(t, DSPToggle{Enabled: true, Level: 60}, sl.DSP["nr"])
}

func TestApplySliceUnrecognizedAttributeRetained(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"some_future_key": "42"}})
	sl, ok := s.GetSlice("0")
	require.True(t, ok)
	assert.Equal(t, "42", sl.Raw["some_future_key"])
}

func TestApplySliceOwnership(t *testing.T) {
	s := New(log.Default())
	s.SetLocalClientHandle("0xAABBCCDD")
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"client_handle": "aabbccdd"}})
	sl, ok := s.GetSlice("0")
	require.True(t, ok)
	assert.True(t, sl.IsOwnedByLocalClient)
}

func TestCheckDiversityInvariant(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{
		"diversity_child": "1", "diversity_index": "0",
	}})
	violators := s.CheckDiversityInvariant()
	assert.Equal(t, []string{NormalizeID("0")}, violators)

	s.Apply(StatusFrame{Scope: "slice", Identifier: "1", Attrs: map[string]string{
		"diversity_parent": "1", "diversity_index": "0",
	}})
	assert.Empty(t, s.CheckDiversityInvariant())
}

func TestCheckPanadapterWaterfallInvariant(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "display pan", Identifier: "10000000", Attrs: map[string]string{
		"waterfall": "20000000",
	}})
	assert.Equal(t, []string{NormalizeID("10000000")}, s.CheckPanadapterWaterfallInvariant())

	s.Apply(StatusFrame{Scope: "display waterfall", Identifier: "20000000", Attrs: map[string]string{}})
	assert.Empty(t, s.CheckPanadapterWaterfallInvariant())
}
