package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// BrokerFile is the on-disk broker configuration.
type BrokerFile struct {
	Addr          string `toml:"addr"`
	DirectoryAddr string `toml:"directory_addr"`
	AdminAddr     string `toml:"admin_addr"`
	BufferSize    int    `toml:"buffer_size"`
	RedialInitial string `toml:"redial_initial"`
	RedialMax     string `toml:"redial_max"`
}

// ClientFile is the on-disk client configuration.
type ClientFile struct {
	Broker         string `toml:"broker"`
	Login          string `toml:"login"`
	Password       string `toml:"password"`
	Dir            string `toml:"dir"`
	PrivateAddr    string `toml:"private_addr"`
	ChunkWindow    int    `toml:"chunk_window"`
	ReassemblySize int    `toml:"reassembly_size"`
}

// DirectoryFile is the directory's listen address and registered users.
type DirectoryFile struct {
	Addr  string      `toml:"addr"`
	Users []UserEntry `toml:"users"`
}

// UserEntry is one registered login with its bcrypt password hash.
type UserEntry struct {
	Login string `toml:"login"`
	Hash  string `toml:"hash"`
}

func LoadBrokerFile(path string) (BrokerFile, error) {
	var cfg BrokerFile
	if err := loadToml(path, &cfg); err != nil {
		return BrokerFile{}, err
	}
	if err := ValidateBrokerFile(cfg); err != nil {
		return BrokerFile{}, err
	}
	return cfg, nil
}

func LoadClientFile(path string) (ClientFile, error) {
	var cfg ClientFile
	if err := loadToml(path, &cfg); err != nil {
		return ClientFile{}, err
	}
	if err := ValidateClientFile(cfg); err != nil {
		return ClientFile{}, err
	}
	return cfg, nil
}

func LoadDirectoryFile(path string) (DirectoryFile, error) {
	var cfg DirectoryFile
	if err := loadToml(path, &cfg); err != nil {
		return DirectoryFile{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = ":7778"
	}
	if err := ValidateDirectoryFile(cfg); err != nil {
		return DirectoryFile{}, err
	}
	return cfg, nil
}

// loadToml decodes strictly: unknown keys are typos, not extensions.
func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateBrokerFile(cfg BrokerFile) error {
	if cfg.BufferSize < 0 {
		return fmt.Errorf("broker config buffer_size must not be negative")
	}
	return nil
}

func ValidateClientFile(cfg ClientFile) error {
	if strings.TrimSpace(cfg.Broker) == "" {
		return fmt.Errorf("client config missing broker")
	}
	if cfg.ChunkWindow < 0 || cfg.ReassemblySize < 0 {
		return fmt.Errorf("client config sizes must not be negative")
	}
	return nil
}

func ValidateDirectoryFile(cfg DirectoryFile) error {
	seen := make(map[string]struct{}, len(cfg.Users))
	for i, u := range cfg.Users {
		if err := ValidateUserEntry(u); err != nil {
			return fmt.Errorf("users[%d] invalid: %w", i, err)
		}
		if _, dup := seen[u.Login]; dup {
			return fmt.Errorf("users[%d] duplicate login %q", i, u.Login)
		}
		seen[u.Login] = struct{}{}
	}
	return nil
}

func ValidateUserEntry(u UserEntry) error {
	if u.Login == "" || len(u.Login) > 1024 {
		return fmt.Errorf("login must be 1..1024 bytes")
	}
	if !strings.HasPrefix(u.Hash, "$2") {
		return fmt.Errorf("hash for %q is not a bcrypt hash", u.Login)
	}
	return nil
}
