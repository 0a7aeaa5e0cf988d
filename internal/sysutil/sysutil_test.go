package sysutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestConfigureLogger_JSONAndPretty(t *testing.T) {
	origLevel, origLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
	})
	t.Setenv("APP_VERSION", "1.4.0")

	var buf bytes.Buffer
	l := ConfigureLogger(&buf, "warn", false)
	l.Info().Msg("dropped")
	log.Warn().Str("idea_len", "12").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if m["message"] != "kept" || m["version"] != "1.4.0" || m["time"] == nil {
		t.Fatalf("unexpected log line: %v", m)
	}

	buf.Reset()
	ConfigureLogger(&buf, "info", true)
	log.Info().Msg("pretty")
	if out := buf.String(); !strings.Contains(out, "pretty") || strings.HasPrefix(out, "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}

func TestVersion_EnvWins(t *testing.T) {
	t.Setenv("APP_VERSION", " 2.0.1 ")
	if got := Version(); got != "2.0.1" {
		t.Fatalf("Version() = %q", got)
	}
	t.Setenv("APP_VERSION", "")
	if got := Version(); got == "" {
		t.Fatalf("Version() must never be empty")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "b", "c"); got != "b" {
		t.Fatalf("FirstNonEmpty = %q; want b", got)
	}
	if got := FirstNonEmpty("", " "); got != "" {
		t.Fatalf("FirstNonEmpty(all blank) = %q; want empty", got)
	}
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q; want empty", got)
	}
}
