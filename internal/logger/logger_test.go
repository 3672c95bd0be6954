package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", false)
	t.Cleanup(func() { InitWriter(&bytes.Buffer{}, "info", false) })

	WithComponent("compositor").Info().Msg("hello")

	out := buf.String()
	require.Contains(t, out, `"component":"compositor"`)
	assert.Contains(t, out, `"message":"hello"`)
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", false)
	t.Cleanup(func() { InitWriter(&bytes.Buffer{}, "info", false) })

	WithComponent("x").Debug().Msg("dropped")
	assert.Empty(t, buf.String())
}
