package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// captureOutput redirects logger output to a buffer for the duration of a test.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	return buf, func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugShowsEverything", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		Debug("debug message")
		Info("info message")

		out := buf.String()
		assert.Contains(t, out, "DEBUG")
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
	})

	t.Run("WarnFiltersDebugAndInfo", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")
		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("InvalidLevelIsIgnored", func(t *testing.T) {
		SetLevel("WARN")
		SetLevel("NOT_A_LEVEL")
		assert.Equal(t, LevelWarn, Level(currentLevel.Load()))
		SetLevel("INFO")
	})
}

func TestFormatSwitch(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("json")
	Info("structured", "seq", 3, "function", "READ")

	assert.Contains(t, buf.String(), `"seq":3`)
	assert.Contains(t, buf.String(), `"function":"READ"`)

	SetFormat("text")
}

func TestPrintfCompat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("DEBUG")
	Debugf("fragment from %s, %d bytes", "master", 12)

	assert.Contains(t, buf.String(), "fragment from master, 12 bytes")
}
