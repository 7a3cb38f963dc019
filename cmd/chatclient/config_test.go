package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/chathack/internal/transfer"
)

func TestLoadClientConfigExample(t *testing.T) {
	cfg, err := loadClientConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BrokerAddr != "127.0.0.1:7777" {
		t.Fatalf("unexpected broker addr: %q", cfg.BrokerAddr)
	}
	if cfg.Login != "alice" || !cfg.Guest() {
		t.Fatalf("expected guest alice, got %q guest=%v", cfg.Login, cfg.Guest())
	}
	if cfg.Dir != "./files" {
		t.Fatalf("unexpected dir: %q", cfg.Dir)
	}
	if cfg.PrivateListenAddr != "0.0.0.0:0" {
		t.Fatalf("unexpected private addr: %q", cfg.PrivateListenAddr)
	}
	if cfg.Sender.Window != 32 {
		t.Fatalf("unexpected chunk window: %d", cfg.Sender.Window)
	}
	if cfg.ReassemblySize != transfer.DefaultReassemblySize {
		t.Fatalf("expected default reassembly size, got %d", cfg.ReassemblySize)
	}
}

func TestLoadClientConfigPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
broker = "chat.example:7777"
login = "bob"
password = "builder"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Guest() || cfg.Password != "builder" {
		t.Fatalf("expected password login, got %q", cfg.Password)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadClientConfigRequiresBroker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`login = "bob"`+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadClientConfig(path); err == nil {
		t.Fatalf("expected missing broker error")
	}
}
