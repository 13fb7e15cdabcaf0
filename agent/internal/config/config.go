package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	RelayURL     string
	DeviceID     string
	PollInterval time.Duration
	LogPath      string
	LogLevel     string
}

var cfg AppConfig

// Init loads path (empty uses config/config.yaml when present) with
// RELAY_AGENT_ environment overrides.
func Init(path string) (AppConfig, error) {
	v := viper.New()
	if path == "" {
		path = "config/config.yaml"
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults
	v.SetDefault("agent.relay.url", "http://127.0.0.1:8787")
	v.SetDefault("agent.device_id", defaultDeviceID())
	v.SetDefault("agent.poll_interval", "1s")
	v.SetDefault("agent.log_level", "info")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg = AppConfig{
		RelayURL:     strings.TrimRight(v.GetString("agent.relay.url"), "/"),
		DeviceID:     v.GetString("agent.device_id"),
		PollInterval: v.GetDuration("agent.poll_interval"),
		LogPath:      v.GetString("agent.log_path"),
		LogLevel:     v.GetString("agent.log_level"),
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = defaultDeviceID()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return cfg, nil
}

func Get() AppConfig { return cfg }

func defaultDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "agent"
	}
	return "agent-" + strings.ToLower(host)
}
