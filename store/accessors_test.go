package store

import (
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsFrozen(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"freq": "14.250000"}})

	snap := s.Snapshot()
	require.Len(t, snap.Slices, 1)

	s.Apply(StatusFrame{Scope: "slice", Identifier: "1", Attrs: map[string]string{"freq": "7.074000"}})
	assert.Len(t, snap.Slices, 1, "snapshot must not see entities added after it was taken")
}

func TestGetGuiClientOwnership(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "client", Identifier: "aabbccdd", Attrs: map[string]string{"station": "shack"}})
	s.SetLocalClientHandle("0xAABBCCDD")

	c, ok := s.GetGuiClient("aabbccdd")
	require.True(t, ok)
	assert.True(t, c.IsOwnedByLocalClient)
}

func TestGetLicense(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "license", Identifier: "DIGITAL_VOICE", Attrs: map[string]string{"enabled": "1"}})
	lic, ok := s.GetLicense("DIGITAL_VOICE")
	require.True(t, ok)
	assert.True(t, lic.Enabled)
}
