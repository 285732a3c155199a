package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	for in, want := range map[string]zerolog.Level{
		"  DeBuG  ": zerolog.DebugLevel,
		"WARNING":   zerolog.WarnLevel,
		"warn":      zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"panic":     zerolog.PanicLevel,
		"":          zerolog.InfoLevel,
		"trace":     zerolog.InfoLevel,
		"disabled":  zerolog.InfoLevel,
		"verbose":   zerolog.InfoLevel,
	} {
		SetLogLevel(in)
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("SetLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogging_JSON(t *testing.T) {
	origLevel, origLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
	})

	var buf bytes.Buffer
	lg := setupLogging(&buf, "info", false, "files-cache-gateway")
	lg.Debug().Msg("hidden")
	log.Info().Int("object_id", 42).Msg("cached file")

	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %s", line)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", line, err)
	}
	if m["service"] != "files-cache-gateway" || m["message"] != "cached file" || m["object_id"] != float64(42) {
		t.Fatalf("unexpected log fields: %v", m)
	}
	if _, ok := m["time"]; !ok {
		t.Fatalf("timestamp missing: %v", m)
	}
}

func TestSetupLogging_Pretty(t *testing.T) {
	origLevel, origLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
	})

	var buf bytes.Buffer
	setupLogging(&buf, "debug", true, "svc")
	log.Debug().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "hello") || strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}
