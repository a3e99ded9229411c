package util

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, zerolog.WarnLevel, NewLogger("WARN").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger("bogus").GetLevel(), "unknown levels fall back to info")
}
