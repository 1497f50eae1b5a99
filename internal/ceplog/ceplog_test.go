package ceplog

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestNewEmitsJSONLinesWithTsKey(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Output: &buf, Debug: false})
	logger.Info("hello", "k", "v")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got error: %v, content: %s", err, buf.String())
	}
	if _, ok := decoded["ts"]; !ok {
		t.Fatalf("expected 'ts' key in log line, got: %v", decoded)
	}
	if decoded["msg"] != "hello" {
		t.Fatalf("expected msg=hello, got %v", decoded["msg"])
	}
	if decoded["k"] != "v" {
		t.Fatalf("expected k=v, got %v", decoded["k"])
	}
	if _, ok := decoded["source"]; !ok {
		t.Fatalf("expected source attribute from AddSource, got: %v", decoded)
	}
}

func TestNewFromEnvHonorsDebugFlag(t *testing.T) {
	t.Setenv("CEP_DEBUG", "1")

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	logger := NewFromEnv()
	logger.Debug("debug message")

	os.Stderr = orig
	w.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	if buf.Len() == 0 {
		t.Fatal("expected debug message to be emitted when debug enabled")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Output != os.Stderr {
		t.Fatalf("expected default output to be os.Stderr")
	}
}
