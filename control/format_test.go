package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBool(t *testing.T) {
	assert.Equal(t, "1", formatBool(true))
	assert.Equal(t, "0", formatBool(false))
}

func TestClampLevel(t *testing.T) {
	assert.Equal(t, 0, clampLevel(-5))
	assert.Equal(t, 100, clampLevel(150))
	assert.Equal(t, 42, clampLevel(42))
}

func TestFormatMHz(t *testing.T) {
	assert.Equal(t, "14.250000", formatMHz(14.25))
}

func TestFormatEnum(t *testing.T) {
	assert.Equal(t, "usb", formatEnum("  USB  "))
}
