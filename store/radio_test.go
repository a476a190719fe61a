package store

import (
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRadioScopes(t *testing.T) {
	s := New(log.Default())

	s.Apply(StatusFrame{Scope: "radio", Attrs: map[string]string{
		"model": "FLEX-6600", "serial": "1234-5678", "version_smartsdr": "3.8.12",
		"filter_sharpness_SSB": "2",
	}})
	s.Apply(StatusFrame{Scope: "atu", Attrs: map[string]string{"present": "1", "enabled": "1"}})
	s.Apply(StatusFrame{Scope: "interlock", Attrs: map[string]string{"state": "RECEIVE", "tx_allowed": "1"}})
	s.Apply(StatusFrame{Scope: "gps", Attrs: map[string]string{"installed": "1", "locked": "1"}})

	r := s.GetRadio()
	require.NotNil(t, r)
	assert.Equal(t, "FLEX-6600", r.Model)
	assert.Equal(t, 2, r.FilterSharpness["SSB"])
	assert.True(t, r.ATU.Present)
	assert.Equal(t, "RECEIVE", r.Interlock.State)
	assert.True(t, r.GPS.Locked)
	assert.True(t, r.VersionAtLeast("smartsdr", "3.8.0"))
	assert.False(t, r.VersionAtLeast("smartsdr", "3.9.0"))
	assert.False(t, r.VersionAtLeast("missing", "1.0.0"))
}

func TestSetLocalClientHandleIdempotent(t *testing.T) {
	s := New(log.Default())
	s.Apply(StatusFrame{Scope: "slice", Identifier: "0", Attrs: map[string]string{"client_handle": "aabbccdd"}})

	changes := s.SetLocalClientHandle("0xAABBCCDD")
	assert.NotEmpty(t, changes)

	changes = s.SetLocalClientHandle("aabbccdd")
	assert.Empty(t, changes, "re-setting the same handle must be a no-op")
}

func TestApplyMeterSample(t *testing.T) {
	s := New(log.Default())
	change := s.ApplyMeterSample("1", -65.0)
	require.NotNil(t, change)
	assert.Equal(t, -65.0, change.Diff["value"])

	change = s.ApplyMeterSample("1", -65.0)
	assert.Nil(t, change, "re-applying the same value must be a no-op")
}
