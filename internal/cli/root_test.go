package cli

import (
	"os"
	"testing"
)

func resetRoot(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		appHandle = nil
		cfgFile = ""
		logLevel = ""
	})
}

func TestInitAppRejectsUnknownLogLevel(t *testing.T) {
	resetRoot(t)
	chdir(t, t.TempDir())
	logLevel = "chatty"

	if err := initApp(rootCmd, nil); err == nil {
		t.Fatal("unknown --log-level should be rejected")
	}
	if appHandle != nil {
		t.Fatal("app must not be built after a flag error")
	}
}

func TestInitAppAppliesLogLevelOverride(t *testing.T) {
	resetRoot(t)
	chdir(t, t.TempDir())
	logLevel = "debug"

	if err := initApp(rootCmd, nil); err != nil {
		t.Fatalf("init app: %v", err)
	}
	a := getApp()
	if a.Config.Logging.Level != "debug" {
		t.Fatalf("level = %q, want flag override", a.Config.Logging.Level)
	}
	if a.Out == nil {
		t.Fatal("command output should be wired")
	}
}

// chdir is the pre-Go 1.24 equivalent of t.Chdir.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
