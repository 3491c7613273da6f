// Package daemon composes the application: logger, bus, lock,
// credential store, the two platform sessions, the coordinator, and the
// interactive shell, wired through fx.
package daemon

import (
	"context"
	"io"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pyatkov/telecord/internal/bridge"
	"github.com/pyatkov/telecord/internal/bus"
	"github.com/pyatkov/telecord/internal/config"
	"github.com/pyatkov/telecord/internal/creds"
	"github.com/pyatkov/telecord/internal/lock"
	"github.com/pyatkov/telecord/internal/logging"
	"github.com/pyatkov/telecord/internal/platform"
	"github.com/pyatkov/telecord/internal/platform/discord"
	"github.com/pyatkov/telecord/internal/platform/telegram"
	"github.com/pyatkov/telecord/internal/shell"
)

// Params holds the resolved startup configuration passed to the fx
// module. Input and Output are the shell's terminal ends.
type Params struct {
	DataDir string
	Input   io.Reader
	Output  io.Writer
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideStore,
			provideTelegramSession,
			provideDiscordSession,
			provideCoordinator,
			provideShell,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(creds.LogPath(p.DataDir))
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(creds.ConfigPath(p.DataDir))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", p.DataDir))
	l, err := lock.Acquire(p.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params) *creds.Store {
	return creds.NewStore(p.DataDir)
}

func provideTelegramSession(p Params, b *bus.Bus, logger *zap.Logger) *telegram.Session {
	machine := platform.NewMachine(string(bridge.SideTelegram), b)
	return telegram.NewSession(telegram.DialMTProto(p.DataDir), machine, logger.Named("telegram"))
}

func provideDiscordSession(b *bus.Bus, logger *zap.Logger) *discord.Session {
	machine := platform.NewMachine(string(bridge.SideDiscord), b)
	return discord.NewSession(discord.DialREST(), machine, logger.Named("discord"))
}

func provideCoordinator(tg *telegram.Session, dc *discord.Session, store *creds.Store, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *bridge.Coordinator {
	return bridge.New(tg, dc, store, b, cfg.MessageLimit, logger.Named("bridge"))
}

func provideShell(p Params, coord *bridge.Coordinator, b *bus.Bus, logger *zap.Logger) *shell.Shell {
	return shell.New(coord, b, p.Input, p.Output, logger.Named("shell"))
}

func registerLifecycle(lc fx.Lifecycle, sd fx.Shutdowner, sh *shell.Shell, coord *bridge.Coordinator, cfg *config.Config, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// "quit" in the shell shuts the whole app down.
			sh.OnExit(func() { _ = sd.Shutdown() })
			sh.Start(context.Background())

			// Resume stored sessions in the background; a bad or
			// missing record degrades to logged-out sides, never a
			// startup failure.
			go coord.Resume(context.Background(), cfg.DefaultAccount)

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sh.Stop()
			coord.Shutdown(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
