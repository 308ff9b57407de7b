package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type probeConfig struct {
	Host     string
	Port     int
	Topics   []string
	KeepOld  bool
	Legacy   bool
	Interval time.Duration
	Count    int
	PadBytes int
}

func defaultProbeConfig() probeConfig {
	return probeConfig{
		Host:     "127.0.0.1",
		Port:     5600,
		Interval: 500 * time.Millisecond,
		Count:    0, // run forever
	}
}

type fileConfig struct {
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Topics   []string `toml:"topics"`
	KeepOld  bool     `toml:"keep_old"`
	Legacy   bool     `toml:"legacy"`
	Interval string   `toml:"interval"`
	Count    int      `toml:"count"`
	PadBytes int      `toml:"pad_bytes"`
}

func loadProbeConfig(path string) (probeConfig, error) {
	cfg := defaultProbeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return probeConfig{}, fmt.Errorf("load probe config: %w", err)
	}

	if meta.IsDefined("host") && strings.TrimSpace(raw.Host) != "" {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		if raw.Port <= 0 || raw.Port > 65535 {
			return probeConfig{}, fmt.Errorf("port out of range: %d", raw.Port)
		}
		cfg.Port = raw.Port
	}
	if meta.IsDefined("topics") {
		cfg.Topics = normalizeTopics(raw.Topics)
	}
	if meta.IsDefined("keep_old") {
		cfg.KeepOld = raw.KeepOld
	}
	if meta.IsDefined("legacy") {
		cfg.Legacy = raw.Legacy
	}
	if meta.IsDefined("interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Interval))
		if err != nil {
			return probeConfig{}, fmt.Errorf("parse interval: %w", err)
		}
		cfg.Interval = d
	}
	if meta.IsDefined("count") {
		if raw.Count < 0 {
			return probeConfig{}, fmt.Errorf("count must not be negative: %d", raw.Count)
		}
		cfg.Count = raw.Count
	}
	if meta.IsDefined("pad_bytes") {
		if raw.PadBytes < 0 {
			return probeConfig{}, fmt.Errorf("pad_bytes must not be negative: %d", raw.PadBytes)
		}
		cfg.PadBytes = raw.PadBytes
	}
	return cfg, nil
}

func normalizeTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic != "" {
			out = append(out, topic)
		}
	}
	return out
}
