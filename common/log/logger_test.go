package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	l := log.New()
	if err := ConfigureLogger(l, &buf, Config{Level: "debug", Format: "json", Caller: true}); err != nil {
		t.Fatal(err)
	}
	l.WithField("job", "abc").Debug("started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %q: %v", buf.String(), err)
	}
	if entry["msg"] != "started" || entry["job"] != "abc" {
		t.Fatalf("unexpected entry %v", entry)
	}
	fl, _ := entry["file:line"].(string)
	if !strings.Contains(fl, "logger_test.go:") {
		t.Fatalf("expected call site, got %q", fl)
	}
}

func TestConfigureRejectsBadInput(t *testing.T) {
	l := log.New()
	if err := ConfigureLogger(l, &bytes.Buffer{}, Config{Level: "loud"}); err == nil {
		t.Fatal("expected bad level error")
	}
	if err := ConfigureLogger(l, &bytes.Buffer{}, Config{Format: "xml"}); err == nil {
		t.Fatal("expected bad format error")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := log.New()
	if err := ConfigureLogger(l, &buf, Config{Level: "warn"}); err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
