package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type HTTP struct {
	Host string
	Port int
}

type Log struct {
	Level  string
	Format string // console, json
}

type DB struct {
	Driver string // sqlite, mysql, none
	Path   string
	Host   string
	Port   int
	User   string
	Pass   string
	Name   string
}

type Redis struct {
	Addr        string
	Password    string
	DB          int
	PresenceTTL time.Duration
}

type Gate struct {
	GatedActions  []string
	OverlapPolicy string
	Match         string
	ConfirmTTL    time.Duration
}

type Registry struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

type Ingest struct {
	RatePerMin int
	Burst      int
}

type Brain struct {
	Engine         string // link, noop
	TargetPattern  string
	ScrollCount    int
	ScrollInterval time.Duration
}

type Socket struct {
	AllowedOrigins []string
	PingPeriod     time.Duration
}

type Config struct {
	HTTP  HTTP
	Log   Log
	DB    DB
	Redis Redis
	NATS  struct {
		URL string
	}
	JWT struct {
		Secret string
		Issuer string
		ExpMin int
	}
	Auth struct {
		BootstrapUser     string
		BootstrapPassword string
	}
	Gate     Gate
	Registry Registry
	Ingest   Ingest
	Brain    Brain
	Socket   Socket
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("backend.http.host", "127.0.0.1")
	v.SetDefault("backend.http.port", 8787)
	v.SetDefault("backend.log.level", "info")
	v.SetDefault("backend.log.format", "console")
	v.SetDefault("backend.db.driver", "sqlite")
	v.SetDefault("backend.db.path", "relay.db")
	v.SetDefault("backend.db.host", "127.0.0.1")
	v.SetDefault("backend.db.port", 3306)
	v.SetDefault("backend.db.user", "root")
	v.SetDefault("backend.db.pass", "")
	v.SetDefault("backend.db.name", "job_relay")
	v.SetDefault("backend.redis.addr", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.redis.presence_ttl", "10m")
	v.SetDefault("backend.nats.url", "")
	v.SetDefault("backend.jwt.secret", "")
	v.SetDefault("backend.jwt.issuer", "job-relay")
	v.SetDefault("backend.jwt.exp_min", 60)
	v.SetDefault("backend.auth.bootstrap_user", "admin")
	v.SetDefault("backend.auth.bootstrap_password", "")
	v.SetDefault("backend.gate.gated_actions", []string{"NAVIGATE"})
	v.SetDefault("backend.gate.overlap_policy", "drop")
	v.SetDefault("backend.gate.match", "any")
	v.SetDefault("backend.gate.confirm_ttl", "2m")
	v.SetDefault("backend.registry.idle_timeout", "30m")
	v.SetDefault("backend.registry.sweep_interval", "30s")
	v.SetDefault("backend.ingest.rate_per_min", 600)
	v.SetDefault("backend.ingest.burst", 60)
	v.SetDefault("backend.brain.engine", "link")
	v.SetDefault("backend.brain.target_pattern", "")
	v.SetDefault("backend.brain.scroll_count", 5)
	v.SetDefault("backend.brain.scroll_interval", "2s")
	v.SetDefault("backend.socket.allowed_origins", []string{})
	v.SetDefault("backend.socket.ping_period", "30s")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTP: HTTP{Host: v.GetString("backend.http.host"), Port: v.GetInt("backend.http.port")},
		Log:  Log{Level: v.GetString("backend.log.level"), Format: v.GetString("backend.log.format")},
		DB: DB{
			Driver: strings.ToLower(v.GetString("backend.db.driver")),
			Path:   v.GetString("backend.db.path"),
			Host:   v.GetString("backend.db.host"),
			Port:   v.GetInt("backend.db.port"),
			User:   v.GetString("backend.db.user"),
			Pass:   v.GetString("backend.db.pass"),
			Name:   v.GetString("backend.db.name"),
		},
		Redis: Redis{
			Addr:        v.GetString("backend.redis.addr"),
			Password:    v.GetString("backend.redis.password"),
			DB:          v.GetInt("backend.redis.db"),
			PresenceTTL: v.GetDuration("backend.redis.presence_ttl"),
		},
		Gate: Gate{
			GatedActions:  v.GetStringSlice("backend.gate.gated_actions"),
			OverlapPolicy: strings.ToLower(v.GetString("backend.gate.overlap_policy")),
			Match:         strings.ToLower(v.GetString("backend.gate.match")),
			ConfirmTTL:    v.GetDuration("backend.gate.confirm_ttl"),
		},
		Registry: Registry{
			IdleTimeout:   v.GetDuration("backend.registry.idle_timeout"),
			SweepInterval: v.GetDuration("backend.registry.sweep_interval"),
		},
		Ingest: Ingest{
			RatePerMin: v.GetInt("backend.ingest.rate_per_min"),
			Burst:      v.GetInt("backend.ingest.burst"),
		},
		Brain: Brain{
			Engine:         strings.ToLower(v.GetString("backend.brain.engine")),
			TargetPattern:  v.GetString("backend.brain.target_pattern"),
			ScrollCount:    v.GetInt("backend.brain.scroll_count"),
			ScrollInterval: v.GetDuration("backend.brain.scroll_interval"),
		},
		Socket: Socket{
			AllowedOrigins: v.GetStringSlice("backend.socket.allowed_origins"),
			PingPeriod:     v.GetDuration("backend.socket.ping_period"),
		},
	}
	cfg.NATS.URL = v.GetString("backend.nats.url")
	cfg.JWT.Secret = v.GetString("backend.jwt.secret")
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "dev-secret"
	}
	cfg.JWT.Issuer = v.GetString("backend.jwt.issuer")
	cfg.JWT.ExpMin = v.GetInt("backend.jwt.exp_min")
	if cfg.JWT.ExpMin <= 0 {
		cfg.JWT.ExpMin = 60
	}
	cfg.Auth.BootstrapUser = v.GetString("backend.auth.bootstrap_user")
	cfg.Auth.BootstrapPassword = v.GetString("backend.auth.bootstrap_password")
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "sqlite", "mysql", "none":
	default:
		return fmt.Errorf("config: unknown db driver %q", c.DB.Driver)
	}
	switch c.Brain.Engine {
	case "link", "noop":
	default:
		return fmt.Errorf("config: unknown brain engine %q", c.Brain.Engine)
	}
	switch c.Gate.OverlapPolicy {
	case "drop", "queue":
	default:
		return fmt.Errorf("config: unknown overlap policy %q", c.Gate.OverlapPolicy)
	}
	switch c.Gate.Match {
	case "any", "exact", "prefix":
	default:
		return fmt.Errorf("config: unknown match mode %q", c.Gate.Match)
	}
	if c.Gate.ConfirmTTL < 0 {
		return fmt.Errorf("config: negative confirm_ttl")
	}
	return nil
}

// Load reads path (empty means defaults and environment only).
func Load(path string) (*Config, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// Watch re-reads path whenever it changes and hands every valid result to
// onChange. Invalid edits are reported through onError and otherwise ignored.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	if path == "" {
		return nil
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
