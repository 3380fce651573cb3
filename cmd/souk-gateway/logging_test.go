// ABOUTME: Tests for the colorized slog handler used in text log mode
// ABOUTME: Color output is disabled so lines can be compared as plain text

package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestColorHandler(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo)).With("component", "realtime")

	logger.Debug("hidden")
	logger.Info("connection registered", "user_id", "cust-1")
	logger.WithGroup("conn").Warn("slow reader", "pending", 3)
	logger.Error("boom", slog.Group("req", "method", "POST"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 3) {
		assert.Contains(t, lines[0], "INF connection registered component=realtime user_id=cust-1")
		assert.Contains(t, lines[1], "WRN slow reader component=realtime conn.pending=3")
		assert.Contains(t, lines[2], "ERR boom component=realtime req.method=POST")
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
