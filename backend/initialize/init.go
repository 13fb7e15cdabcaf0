package initialize

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"job-relay/backend/app/brain"
	"job-relay/backend/app/cache"
	"job-relay/backend/app/controllers"
	"job-relay/backend/app/db"
	"job-relay/backend/app/events"
	jwtutil "job-relay/backend/app/jwt"
	"job-relay/backend/app/middleware"
	"job-relay/backend/app/ratelimit"
	"job-relay/backend/app/repo"
	"job-relay/backend/app/services"
	"job-relay/backend/app/session"
	"job-relay/backend/app/socket"
	"job-relay/backend/config"
	"job-relay/backend/global"
	"job-relay/backend/router"
)

type App struct {
	Cfg    *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Router http.Handler
	Signer *jwtutil.Signer
	Relay  *services.RelayService
	Gate   *session.Gate
	Hub    *socket.Hub
	Reaper *session.Reaper
}

// GateConfig maps the config section onto the gate tunables.
func GateConfig(c config.Gate) session.GateConfig {
	return session.GateConfig{
		GatedActions: c.GatedActions,
		Overlap:      session.OverlapPolicy(c.OverlapPolicy),
		Match:        session.MatchMode(c.Match),
		ConfirmTTL:   c.ConfirmTTL,
	}
}

func Build(cfg *config.Config) (*App, error) {
	global.Config = cfg
	log := global.Logger
	app := &App{Cfg: cfg}

	// Journal
	var recorder services.Recorder = services.NopRecorder{}
	var operators *services.OperatorService
	if cfg.DB.Driver != "none" {
		gdb, err := db.Connect(db.Config{
			Driver:   cfg.DB.Driver,
			Path:     cfg.DB.Path,
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			User:     cfg.DB.User,
			Password: cfg.DB.Pass,
			DBName:   cfg.DB.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		if err := db.Migrate(gdb); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		global.Mdb = gdb
		app.DB = gdb
		recorder = services.NewJournal(
			services.NewDeviceService(repo.NewDeviceRepository(gdb)),
			services.NewAgentLogService(repo.NewAgentLogRepository(gdb)),
			services.NewCommandLogService(repo.NewAgentCommandRepository(gdb)),
		)
		operators = services.NewOperatorService(repo.NewOperatorRepository(gdb))
		if cfg.Auth.BootstrapPassword != "" {
			if err := operators.EnsureAdmin(cfg.Auth.BootstrapUser, cfg.Auth.BootstrapPassword); err != nil {
				return nil, fmt.Errorf("bootstrap operator: %w", err)
			}
		}
		log.Info().Str("driver", cfg.DB.Driver).Msg("journal enabled")
	}

	// Presence
	var presence services.Presence
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable, presence writes will be retried per event")
		}
		cancel()
		global.Rdb = rdb
		app.Redis = rdb
		presence = cache.NewPresence(rdb, cfg.Redis.PresenceTTL)
	}

	// Event bus
	var pub events.Publisher = &events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		np, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, events disabled")
		} else {
			pub = np
		}
	}

	engine, err := buildEngine(cfg.Brain, log)
	if err != nil {
		return nil, err
	}

	reg := session.NewRegistry()
	gate := session.NewGate(reg, GateConfig(cfg.Gate))
	relay := services.NewRelayService(services.RelayDeps{
		Registry:  reg,
		Gate:      gate,
		Engine:    engine,
		Recorder:  recorder,
		Presence:  presence,
		Publisher: pub,
		Limiter:   ratelimit.New(cfg.Ingest.RatePerMin, cfg.Ingest.Burst),
		Logger:    log,
	})
	hub := socket.NewHub(relay, socket.Config{
		AllowedOrigins: cfg.Socket.AllowedOrigins,
		PingPeriod:     cfg.Socket.PingPeriod,
	}, log)
	reaper := session.NewReaper(reg, gate, session.ReaperConfig{
		IdleTimeout:   cfg.Registry.IdleTimeout,
		SweepInterval: cfg.Registry.SweepInterval,
		OnEvict:       relay.OnEvict,
	}, log)

	// Controllers
	signer := &jwtutil.Signer{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer, ExpMin: cfg.JWT.ExpMin}
	mw := &middleware.Auth{Signer: signer}
	var auth *controllers.AuthController
	if operators != nil {
		auth = controllers.NewAuthController(operators, signer)
	}
	h := router.NewRouter(router.Controllers{
		HTTP:     controllers.NewHTTPController(relay),
		Agent:    controllers.NewAgentController(relay),
		Socket:   controllers.NewSocketController(hub),
		Command:  controllers.NewCommandController(relay),
		Device:   controllers.NewDeviceController(relay),
		AgentLog: controllers.NewAgentLogController(relay),
		Auth:     auth,
	}, mw)

	app.Router = h
	app.Signer = signer
	app.Relay = relay
	app.Gate = gate
	app.Hub = hub
	app.Reaper = reaper
	return app, nil
}

func buildEngine(c config.Brain, log zerolog.Logger) (brain.Engine, error) {
	switch c.Engine {
	case "noop":
		return brain.Noop{}, nil
	default:
		e, err := brain.NewLinkFollower(brain.LinkFollowerConfig{
			Pattern:        c.TargetPattern,
			ScrollCount:    c.ScrollCount,
			ScrollInterval: c.ScrollInterval,
		}, log.With().Str("component", "brain").Logger())
		if err != nil {
			return nil, fmt.Errorf("brain: %w", err)
		}
		return e, nil
	}
}

// Reconfigure applies the settings that can change without a restart.
func (a *App) Reconfigure(cfg *config.Config) {
	a.Gate.Configure(GateConfig(cfg.Gate))
	SetupLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	global.Logger.Info().
		Str("match", cfg.Gate.Match).
		Str("overlap", cfg.Gate.OverlapPolicy).
		Dur("confirm_ttl", cfg.Gate.ConfirmTTL).
		Msg("configuration reloaded")
}

// Start launches background work.
func (a *App) Start() { a.Reaper.Start() }

// Shutdown stops background work and releases connections.
func (a *App) Shutdown() {
	a.Reaper.Stop()
	a.Hub.Close()
	if err := a.Relay.Close(); err != nil {
		global.Logger.Warn().Err(err).Msg("relay close")
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
