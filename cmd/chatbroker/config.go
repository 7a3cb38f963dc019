package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/chathack/internal/broker"
	"github.com/danmuck/chathack/internal/config"
)

type fileConfig struct {
	config.BrokerFile
	AdminOrigins []string `toml:"admin_origins"`
}

func loadBrokerConfig(path string) (broker.Config, error) {
	cfg := broker.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return broker.Config{}, fmt.Errorf("load broker config: %w", err)
	}
	if err := config.ValidateBrokerFile(raw.BrokerFile); err != nil {
		return broker.Config{}, err
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("directory_addr") {
		cfg.DirectoryAddr = strings.TrimSpace(raw.DirectoryAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_origins") {
		cfg.AdminOrigins = raw.AdminOrigins
	}
	if meta.IsDefined("buffer_size") {
		cfg.Session.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("redial_initial") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RedialInitial))
		if err != nil {
			return broker.Config{}, fmt.Errorf("parse redial_initial: %w", err)
		}
		cfg.Session.Backoff.InitialDelay = d
	}
	if meta.IsDefined("redial_max") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RedialMax))
		if err != nil {
			return broker.Config{}, fmt.Errorf("parse redial_max: %w", err)
		}
		cfg.Session.Backoff.MaxDelay = d
	}

	return cfg, cfg.Validate()
}
