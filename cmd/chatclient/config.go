package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/chathack/internal/client"
	"github.com/danmuck/chathack/internal/config"
)

func loadClientConfig(path string) (client.Config, error) {
	cfg := client.DefaultConfig()

	var raw config.ClientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return client.Config{}, fmt.Errorf("load client config: %w", err)
	}
	if err := config.ValidateClientFile(raw); err != nil {
		return client.Config{}, err
	}

	if meta.IsDefined("broker") {
		cfg.BrokerAddr = strings.TrimSpace(raw.Broker)
	}
	if meta.IsDefined("login") {
		cfg.Login = strings.TrimSpace(raw.Login)
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("dir") {
		cfg.Dir = strings.TrimSpace(raw.Dir)
	}
	if meta.IsDefined("private_addr") {
		cfg.PrivateListenAddr = strings.TrimSpace(raw.PrivateAddr)
	}
	if meta.IsDefined("chunk_window") {
		cfg.Sender.Window = raw.ChunkWindow
	}
	if meta.IsDefined("reassembly_size") {
		cfg.ReassemblySize = raw.ReassemblySize
	}

	return cfg, nil
}
