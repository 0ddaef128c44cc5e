package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/example/go-bytebpe/internal/config"
)

// runCmd executes the root command with args from an empty working
// directory, so no stray bytebpe.yaml is picked up.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(bytes.NewBufferString(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"encode", "decode", "vocab", "bench", "model", "serve", "health", "doctor"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config persistent flag to be registered")
	}
	if root.PersistentFlags().Lookup("paths-tokenizer-path") == nil {
		t.Error("expected config flags on the root command")
	}
}

func TestSetupLogger_DoesNotPanic(_ *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		setupLogger(io.Discard, level)
	}
}

func TestSetupLogger_InvalidLevelFallsBackToInfo(_ *testing.T) {
	// Should not panic on invalid level.
	setupLogger(nil, "not-a-level")
}

func TestRequireConfig_FailsWhenNotInitialized(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.Config{}

	_, err := requireConfig()
	if err == nil {
		t.Fatal("expected error when config is not loaded")
	}
}

func TestRequireConfig_SucceedsWhenLoaded(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.DefaultConfig()

	got, err := requireConfig()
	if err != nil {
		t.Fatalf("requireConfig returned unexpected error: %v", err)
	}

	if got.Tokenizer.Backend != config.BackendBPE {
		t.Errorf("unexpected backend: %q", got.Tokenizer.Backend)
	}
}

func TestRootCmd_InvalidConfigFileFails(t *testing.T) {
	_, err := runCmd(t, "", "--config", "/nonexistent/bytebpe.yaml", "vocab")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
