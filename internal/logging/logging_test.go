package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerFormats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	newLogger(&buf, "info", "json").Info("batch submitted", "batch_id", "b1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("json output: %v (%s)", err, buf.String())
	}
	if line["batch_id"] != "b1" || line["msg"] != "batch submitted" {
		t.Fatalf("line = %v", line)
	}

	buf.Reset()
	newLogger(&buf, "warn", "text").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	newLogger(&buf, "warn", "").Warn("shown", "record_id", "r1")
	if !strings.Contains(buf.String(), "record_id=r1") {
		t.Fatalf("text output = %s", buf.String())
	}
}
