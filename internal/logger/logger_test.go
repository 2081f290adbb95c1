package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func resetLogger() {
	Init(Options{})
}

func TestInit_DefaultLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	Info("visible info")
	if !strings.Contains(buf.String(), "visible info") {
		t.Error("Info should be logged at default level")
	}

	buf.Reset()

	Debug("hidden debug")
	if strings.Contains(buf.String(), "hidden debug") {
		t.Error("Debug should not be logged at default level")
	}
}

func TestInit_DebugEnablesDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	Debug("debug line")
	if !strings.Contains(buf.String(), "debug line") {
		t.Error("Debug should be logged when Debug=true")
	}
}

func TestInit_QuietOnlyErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Quiet: true, Output: buf})
	defer resetLogger()

	Info("quiet info")
	Warn("quiet warn")
	Error("quiet error")

	output := buf.String()
	if strings.Contains(output, "quiet info") {
		t.Error("Info should be suppressed when Quiet=true")
	}
	if strings.Contains(output, "quiet warn") {
		t.Error("Warn should be suppressed when Quiet=true")
	}
	if !strings.Contains(output, "quiet error") {
		t.Error("Error should be logged when Quiet=true")
	}
}

func TestInit_QuietOverridesDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Debug: true, Quiet: true, Output: buf})
	defer resetLogger()

	Debug("suppressed")
	if strings.Contains(buf.String(), "suppressed") {
		t.Error("Quiet should take precedence over Debug")
	}
}

func TestInit_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{JSON: true, Output: buf})
	defer resetLogger()

	Info("json message", "note", "Dragon")

	output := buf.String()
	if !strings.Contains(output, `"msg"`) {
		t.Error("JSON output should carry a msg field")
	}
	if !strings.Contains(output, "json message") {
		t.Error("JSON output should contain the message")
	}
	if !strings.Contains(output, "Dragon") {
		t.Error("JSON output should contain attribute values")
	}
}

func TestWith_CarriesAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Output: buf})
	defer resetLogger()

	l := With("profile", "default")
	if l == nil {
		t.Fatal("With() returned nil")
	}
	l.Info("attributed")

	output := buf.String()
	if !strings.Contains(output, "attributed") || !strings.Contains(output, "profile") {
		t.Error("expected message and attribute in output")
	}
}

func TestContextVariants(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	ctx := context.Background()
	DebugContext(ctx, "ctx debug")
	InfoContext(ctx, "ctx info")
	WarnContext(ctx, "ctx warn")
	ErrorContext(ctx, "ctx error")

	output := buf.String()
	for _, want := range []string{"ctx debug", "ctx info", "ctx warn", "ctx error"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}
