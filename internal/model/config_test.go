package model

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(DefaultAppConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveThenLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	want := DefaultAppConfig()
	want.Mailbox.Provider = ProviderGmail
	want.Mailbox.ClientID = "client-123"
	want.AI.Provider = AIProviderOpenAI
	want.AI.Model = "gpt-4o-mini"
	want.Preferences.AutoSync = true
	want.Preferences.SyncIntervalMin = 15

	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MAILASSIST_AI_MODEL", "claude-test")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AI.Model != "claude-test" {
		t.Errorf("AI.Model = %q, want env override", cfg.AI.Model)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Mailbox.Provider = "yahoo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted an unknown mailbox provider")
	}
}

func TestResponseToneValid(t *testing.T) {
	for _, tone := range ResponseTones {
		if !tone.Valid() {
			t.Errorf("%q reported invalid", tone)
		}
	}
	if ResponseTone("sarcastic").Valid() {
		t.Error("unexpected tone accepted")
	}
}
