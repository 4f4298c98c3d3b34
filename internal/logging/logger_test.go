package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		want    string
		wantErr bool
	}{
		{name: "text renames error key", level: "info", format: "text", want: `err="sink unavailable"`},
		{name: "json renames error key", level: "debug", format: "json", want: `"err":"sink unavailable"`},
		{name: "default format", level: "", format: "", want: "level=WARN"},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
		{name: "bad level", level: "loud", format: "text", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewWriter(&buf, tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			logger.Warn("entry failed", "error", errors.New("sink unavailable"))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestNewWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "warn", "text")
	require.NoError(t, err)

	logger.Info("entry refined")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() { NewNop().Error("ignored") })
}
