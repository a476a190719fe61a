package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeMHz(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{14.250000, 14.250000},
		{14.2500001, 14.250000},
		{14.2500009, 14.250001},
		{-7.1, -7.100000},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, CanonicalizeMHz(c.in), 1e-9)
	}
}

func TestParseMHzFormatMHzRoundTrip(t *testing.T) {
	f, err := ParseMHz("freq", "14.074123")
	require.NoError(t, err)
	assert.Equal(t, "14.074123", FormatMHz(f))
}

func TestParseMHzInvalid(t *testing.T) {
	_, err := ParseMHz("freq", "not-a-number")
	require.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "on"} {
		b, err := parseBool("x", v)
		require.NoError(t, err)
		assert.True(t, b)
	}
	for _, v := range []string{"0", "false", "off", ""} {
		b, err := parseBool("x", v)
		require.NoError(t, err)
		assert.False(t, b)
	}
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "0x0000ABCD", NormalizeID("abcd"))
	assert.Equal(t, "0x0000ABCD", NormalizeID("0xABCD"))
	assert.Equal(t, "0x0000ABCD", NormalizeID("0XaBcD"))
	assert.Equal(t, "0x0000ABCD", NormalizeID("  0x0000abcd  "))
}

func TestParseCSV(t *testing.T) {
	assert.Equal(t, []string{"20m", "40m", "80m"}, parseCSV("20m,40m,80m"))
	assert.Nil(t, parseCSV(""))
}
