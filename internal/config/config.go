// Package config loads the client's runtime configuration from compiled-in
// defaults, an optional .env-style file found by walking up to the nearest
// go.mod, and environment variables, in that override order.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ClientConfig holds every option a gvcam client recognizes.
type ClientConfig struct {
	InterfaceAddr      string
	DeviceAddr         string
	AckTimeoutMS       int
	HeartbeatPeriodMS  int
	BufferSize         int
	StreamPacketSize   int
}

func defaults() ClientConfig {
	return ClientConfig{
		AckTimeoutMS:      1000,
		HeartbeatPeriodMS: 1000,
		BufferSize:        1024,
		StreamPacketSize:  0x5dc,
	}
}

var (
	once   sync.Once
	loaded ClientConfig
)

// Load returns the process-wide configuration singleton, populated the
// first time it is called and cached thereafter.
func Load() ClientConfig {
	once.Do(func() {
		cfg := defaults()

		projectRoot := findProjectRoot()
		envPath := filepath.Join(projectRoot, ".env")
		if data, err := os.ReadFile(envPath); err == nil {
			parseEnvFile(string(data), &cfg)
		}

		applyEnv(&cfg)
		loaded = cfg
	})
	return loaded
}

func applyEnv(cfg *ClientConfig) {
	if v := os.Getenv("GVCAM_INTERFACE_ADDR"); v != "" {
		cfg.InterfaceAddr = v
	}
	if v := os.Getenv("GVCAM_DEVICE_ADDR"); v != "" {
		cfg.DeviceAddr = v
	}
	if v, ok := getenvInt("GVCAM_ACK_TIMEOUT_MS"); ok {
		cfg.AckTimeoutMS = v
	}
	if v, ok := getenvInt("GVCAM_HEARTBEAT_PERIOD_MS"); ok {
		cfg.HeartbeatPeriodMS = v
	}
	if v, ok := getenvInt("GVCAM_BUFFER_SIZE"); ok {
		cfg.BufferSize = v
	}
	if v, ok := getenvInt("GVCAM_STREAM_PACKET_SIZE"); ok {
		cfg.StreamPacketSize = v
	}
}

func getenvInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseEnvFile(content string, cfg *ClientConfig) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "GVCAM_INTERFACE_ADDR":
			cfg.InterfaceAddr = value
		case "GVCAM_DEVICE_ADDR":
			cfg.DeviceAddr = value
		case "GVCAM_ACK_TIMEOUT_MS":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.AckTimeoutMS = v
			}
		case "GVCAM_HEARTBEAT_PERIOD_MS":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.HeartbeatPeriodMS = v
			}
		case "GVCAM_BUFFER_SIZE":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.BufferSize = v
			}
		case "GVCAM_STREAM_PACKET_SIZE":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.StreamPacketSize = v
			}
		}
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
