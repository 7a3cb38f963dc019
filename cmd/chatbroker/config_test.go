package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadBrokerConfigExample(t *testing.T) {
	cfg, err := loadBrokerConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7777" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.DirectoryAddr != "127.0.0.1:7778" {
		t.Fatalf("unexpected directory addr: %q", cfg.DirectoryAddr)
	}
	if cfg.AdminListenAddr != "127.0.0.1:7070" {
		t.Fatalf("unexpected admin addr: %q", cfg.AdminListenAddr)
	}
	if len(cfg.AdminOrigins) != 1 || cfg.AdminOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected admin origins: %+v", cfg.AdminOrigins)
	}
	if cfg.Session.BufferSize != 8192 {
		t.Fatalf("unexpected buffer size: %d", cfg.Session.BufferSize)
	}
	if cfg.Session.Backoff.InitialDelay != 100*time.Millisecond {
		t.Fatalf("unexpected redial initial: %v", cfg.Session.Backoff.InitialDelay)
	}
	if cfg.Session.Backoff.MaxDelay != 2*time.Second {
		t.Fatalf("unexpected redial max: %v", cfg.Session.Backoff.MaxDelay)
	}
}

func TestLoadBrokerConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`directory_addr = "10.0.0.2:7778"`+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadBrokerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.DirectoryAddr != "10.0.0.2:7778" {
		t.Fatalf("unexpected directory addr: %q", cfg.DirectoryAddr)
	}
	if cfg.AdminListenAddr != "" {
		t.Fatalf("admin API should stay off, got %q", cfg.AdminListenAddr)
	}
}

func TestLoadBrokerConfigRejects(t *testing.T) {
	for name, content := range map[string]string{
		"bad duration":   `redial_max = "soon"`,
		"small buffer":   `buffer_size = 64`,
		"negative":       `buffer_size = -1`,
		"empty listener": `addr = ""`,
	} {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := loadBrokerConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
