package cmd

import (
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout runs fn and returns what it wrote to stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestRunHelp(t *testing.T) {
	out := captureStdout(t, runHelp)

	for _, want := range []string{"sage serve", "sage ask", "sage sessions", "GEMINI_API_KEY"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestRunVersion(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	out := captureStdout(t, runVersion)

	if !strings.Contains(out, "Sage "+Version) {
		t.Errorf("version output missing version line: %q", out)
	}
	if !strings.Contains(out, "GEMINI_API_KEY: not set") {
		t.Errorf("version output missing key status: %q", out)
	}
}

func TestRunVersionMasksKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "AIzaSyFakeKey123456")
	out := captureStdout(t, runVersion)

	if strings.Contains(out, "AIzaSyFakeKey123456") {
		t.Error("full API key leaked in version output")
	}
	if !strings.Contains(out, "(configured)") {
		t.Errorf("expected configured marker, got %q", out)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"sage", "frobnicate"}

	err := Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Execute() = %v, want unknown command error", err)
	}
}

func TestExecuteNoArgsShowsHelp(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"sage"}

	out := captureStdout(t, func() {
		if err := Execute(); err != nil {
			t.Errorf("Execute() with no args = %v", err)
		}
	})
	if !strings.Contains(out, "Usage:") {
		t.Error("expected help output")
	}
}
