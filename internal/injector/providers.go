package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/arena/internal/arena/config"
	"github.com/zeusync/arena/internal/arena/match"
	"github.com/zeusync/arena/internal/core/events/bus"
	"github.com/zeusync/arena/internal/core/observability/log"
	"github.com/zeusync/arena/internal/server"
)

// App is the assembled process.
type App struct {
	Logger *log.Logger
	Match  *match.Controller
	Server *server.Server
}

// ProviderSet wires config into a running arena.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	bus.New,
	ProvideMatchConfig,
	ProvideController,
	ProvideServerConfig,
	server.NewServer,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.New(level), nil
}

func ProvideMatchConfig(cfg config.Config) config.MatchConfig {
	return cfg.Match
}

// ProvideController builds the match controller; the cleanup stops any
// running match.
func ProvideController(cfg config.MatchConfig, eventBus bus.EventBus, logger log.Log) (*match.Controller, func(), error) {
	c, err := match.New(cfg, eventBus, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

func ProvideServerConfig(cfg config.Config) server.Config {
	def := server.DefaultServerConfig()
	return server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    def.MaxBodyBytes,
	}
}
