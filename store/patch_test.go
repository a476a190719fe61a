package store

import (
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchSliceAppliesLocallyBeforeStatusFrame(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"freq": "14.250000"}})

	change, ok := s.PatchSlice("0", map[string]any{"frequencyMHz": 14.3})
	require.True(t, ok)
	assert.Equal(t, 14.3, change.Diff["frequencyMHz"])

	sl, _ := s.GetSlice("0")
	assert.Equal(t, 14.3, sl.FrequencyMHz)
}

func TestPatchSliceUnknownID(t *testing.T) {
	s := New(log.Default())
	_, ok := s.PatchSlice("99", map[string]any{"frequencyMHz": 14.3})
	assert.False(t, ok)
}

func TestPatchSliceThenAuthoritativeStatusOverwrites(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"freq": "14.250000"}})
	s.PatchSlice("0", map[string]any{"frequencyMHz": 14.3})

	// A resync (re-subscription) delivers the radio's authoritative value,
	// which must win over the optimistic guess.
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"freq": "14.250000"}})
	sl, _ := s.GetSlice("0")
	assert.Equal(t, 14.25, sl.FrequencyMHz)
}
