package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"cisline/internal/config"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.Log{Level: "warn", Format: "json"}, &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "shown" || line["k"] != "v" || line["service"] != "cisline" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.Log{Level: "nope", Format: "json"}, &buf)
	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered, got %q", buf.String())
	}
}
