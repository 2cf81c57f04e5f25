package client_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/halfwit/mpdq/internal/client"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}
	return p
}

func TestLoadConfigSucceeds(t *testing.T) {
	p := writeConfig(t, `{
		"mpdHost": "localhost",
		"mpdPort": 6601,
		"collectionsPath": "/home/user/.mpdq/collections",
		"cacheDir": "/home/user/.cache/mpdq"
	}`)
	var cfg client.Config
	if err := client.LoadConfig(p, &cfg); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MPDHost != "localhost" || cfg.Port() != 6601 {
		t.Errorf("LoadConfig() = %+v; want mpdHost=localhost, port=6601", cfg)
	}
}

func TestLoadConfigDefaultsPortAndProfile(t *testing.T) {
	p := writeConfig(t, `{
		"mpdHost": "localhost",
		"collectionsPath": "/home/user/.mpdq/collections",
		"cacheDir": "/home/user/.cache/mpdq"
	}`)
	var cfg client.Config
	if err := client.LoadConfig(p, &cfg); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port() != 6600 {
		t.Errorf("Port() = %d; want 6600", cfg.Port())
	}
	if cfg.Profile() != "default" {
		t.Errorf("Profile() = %q; want %q", cfg.Profile(), "default")
	}
}

func TestLoadConfigMissingRequiredFieldFails(t *testing.T) {
	p := writeConfig(t, `{"mpdHost": "localhost"}`)
	var cfg client.Config
	if err := client.LoadConfig(p, &cfg); err == nil {
		t.Fatal("LoadConfig() succeeded with no collectionsPath/cacheDir; want error")
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	var cfg client.Config
	if err := client.LoadConfig(filepath.Join(t.TempDir(), "nope.json"), &cfg); err == nil {
		t.Fatal("LoadConfig() succeeded for missing file; want error")
	}
}

func TestLoadConfigInvalidTypeFails(t *testing.T) {
	p := writeConfig(t, `{}`)
	var notConfig struct{ X int }
	if err := client.LoadConfig(p, &notConfig); err == nil {
		t.Fatal("LoadConfig() succeeded for a type with no checkRequired method; want error")
	}
}
