package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"ERROR", "warn", "Info", "DEBUG", "trace"} {
		level, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, strings.ToUpper(name), level.String())
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	l := NewLogger("test")
	var buf bytes.Buffer
	l.base.SetOutput(&buf)

	l.SetLevel(LevelWarn)
	assert.Equal(t, LevelWarn, l.Level())
	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "component=test")
}

func TestWithPrefixSharesLevel(t *testing.T) {
	l := NewLogger("root")
	var buf bytes.Buffer
	l.base.SetOutput(&buf)

	child := l.WithPrefix("child").WithField("path", "/[a]")
	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, child.Level())

	child.Debug("looking up")
	out := buf.String()
	assert.Contains(t, out, "component=child")
	assert.Contains(t, out, "looking up")
	assert.Contains(t, out, "/[a]")
}
