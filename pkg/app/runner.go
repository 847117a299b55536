// Package app wires the bot process together and runs it until shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/go-multierror"

	"github.com/small-frappuccino/plana/pkg/backend"
	"github.com/small-frappuccino/plana/pkg/bus"
	"github.com/small-frappuccino/plana/pkg/cache"
	"github.com/small-frappuccino/plana/pkg/config"
	"github.com/small-frappuccino/plana/pkg/control"
	"github.com/small-frappuccino/plana/pkg/discord/commands"
	"github.com/small-frappuccino/plana/pkg/discord/gateway"
	"github.com/small-frappuccino/plana/pkg/discord/session"
	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
	"github.com/small-frappuccino/plana/pkg/storage"
	"github.com/small-frappuccino/plana/pkg/task"
	"github.com/small-frappuccino/plana/pkg/util"
)

// guildTimeout bounds the per-guild work done on Ready.
const guildTimeout = 30 * time.Second

// App holds the running components of one bot process.
type App struct {
	cfg *config.Config

	store      *storage.Store
	backend    *backend.Client
	guilds     *cache.GuildCache
	users      *cache.UserCache
	tracker    *cache.GuildTracker
	gateway    *gateway.Gateway
	reconciler *commands.Reconciler
	bus        *bus.Bus
	scheduler  *task.Scheduler
	session    *discordgo.Session
	control    *control.Server
}

// Run starts the bot with cfg and blocks until ctx is done or the process
// is interrupted, then shuts down within cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg *config.Config) error {
	started := time.Now()

	if err := log.SetupLogger(log.Options{Dir: cfg.LogDir, Level: log.ParseLevel(cfg.LogLevel)}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.GlobalLogger.Sync()

	log.ApplicationLogger().Info(formatStartupMessage(config.AppName, Version))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{cfg: cfg}
	if err := a.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if stopErr := a.Shutdown(shutdownCtx); stopErr != nil {
			log.ErrorLoggerRaw().Error("Cleanup after failed start", "error", stopErr)
		}
		return err
	}
	log.ApplicationLogger().Info("Bot running", "startup", time.Since(started).Round(time.Millisecond))

	util.WaitForInterrupt(ctx)
	log.ApplicationLogger().Info("Stopping", "app", config.AppName)

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), cfg.ShutdownTimeout, fmt.Errorf("application shutdown"))
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.ErrorLoggerRaw().Error("Shutdown incomplete", "error", err)
		return err
	}
	log.ApplicationLogger().Info("Stopped cleanly")
	return nil
}

// Start builds every component, restores spooled state and opens the
// gateway. Scheduled jobs wait for the first Ready.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfg

	a.store = storage.NewStore(cfg.SpoolPath)
	if err := a.store.Init(); err != nil {
		return fmt.Errorf("initialize spool store: %w", err)
	}

	a.backend = backend.New(cfg.APIURL, cfg.APIKey, backend.WithTimeout(cfg.HTTPTimeout))
	a.guilds = cache.NewGuildCache(a.backend)
	a.users = cache.NewUserCache(a.backend, cache.WithSpooler(a.store))
	if n, err := a.users.Restore(ctx); err != nil {
		log.ApplicationLogger().Warn("Spooled users not restored", "error", err)
	} else if n > 0 {
		log.ApplicationLogger().Info("Restored spooled users", "count", n)
	}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	subscribe, err := parseGuildIDs(cfg.Subscribe)
	if err != nil {
		return err
	}
	a.bus = bus.New(redisOpts, cfg.DedupeTTL)
	if err := a.bus.Subscribe(ctx, subscribe...); err != nil {
		return fmt.Errorf("subscribe to invalidation bus: %w", err)
	}

	a.scheduler = task.NewScheduler()
	if err := a.scheduleJobs(); err != nil {
		return err
	}

	a.session, err = session.NewDiscordSession(cfg.DiscordToken, a.wireSession)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	if a.session.State != nil && a.session.State.User != nil {
		log.DiscordLogger().Info("Authenticated", "user", a.session.State.User.Username, "id", a.session.State.User.ID)
	}

	a.control = control.NewServer(cfg.ControlAddr, a)
	if err := a.control.Start(); err != nil {
		return err
	}
	return nil
}

// wireSession builds the session-bound components. It runs before the
// gateway connection opens.
func (a *App) wireSession(s *discordgo.Session) {
	a.gateway = gateway.New(s, commands.Catalog())
	a.tracker = cache.NewGuildTracker(a.backend, a.gateway, cache.WithGuildSpooler(a.store))
	if n, err := a.tracker.Restore(context.Background()); err != nil {
		log.ApplicationLogger().Warn("Spooled guilds not restored", "error", err)
	} else if n > 0 {
		log.ApplicationLogger().Info("Restored spooled guilds", "count", n)
	}
	a.reconciler = commands.NewReconciler(a.gateway, a.guilds, commands.WithGuildTimeout(guildTimeout))

	bus.NewHandlers(a.guilds, a.reconciler, a.gateway, a.backend).Register(a.bus)

	lc := &lifecycle{
		settings:  a.guilds,
		users:     a.users,
		snapshots: a.tracker,
		commands:  a.reconciler,
		onReady:   a.scheduler.MarkReady,

		guildTimeout: guildTimeout,
	}
	gateway.NewHooks(a.tracker, lc, 2*time.Minute).Register(s)
}

func (a *App) scheduleJobs() error {
	if err := a.scheduler.Go("bus-listen", a.bus.Listen); err != nil {
		return err
	}
	if _, err := a.scheduler.Every("user-flush", a.cfg.UserFlushInterval, func(ctx context.Context) error {
		n, err := a.users.FlushDirty(ctx)
		if n > 0 {
			log.BackendLogger().Debug("Flushed users", "count", n)
		}
		return err
	}); err != nil {
		return err
	}
	if _, err := a.scheduler.Every("guild-flush", a.cfg.GuildFlushInterval, func(ctx context.Context) error {
		if a.tracker == nil {
			return nil
		}
		n, err := a.tracker.Flush(ctx)
		if n > 0 {
			log.BackendLogger().Debug("Flushed guild snapshots", "count", n)
		}
		return err
	}); err != nil {
		return err
	}
	return nil
}

// Shutdown stops the jobs, then the bus, then writes back what is still
// dirty, spools the rest and closes the session and the store. Each step
// runs even when an earlier one fails.
func (a *App) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	if err := a.control.Stop(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop jobs: %w", err))
		}
	}
	if a.bus != nil {
		if err := a.bus.Disconnect(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("disconnect bus: %w", err))
		}
	}

	if a.users != nil {
		if _, err := a.users.FlushDirty(ctx); err != nil {
			log.BackendLogger().Warn("Final user flush failed", "error", err)
		}
		if n, err := a.users.Spool(ctx); err != nil {
			result = multierror.Append(result, err)
		} else if n > 0 {
			log.ApplicationLogger().Info("Spooled unflushed users", "count", n)
		}
	}
	if a.tracker != nil {
		if _, err := a.tracker.Flush(ctx); err != nil {
			log.BackendLogger().Warn("Final guild flush failed", "error", err)
		}
		if n, err := a.tracker.Spool(ctx); err != nil {
			result = multierror.Append(result, err)
		} else if n > 0 {
			log.ApplicationLogger().Info("Spooled unsynced guilds", "count", n)
		}
	}

	if err := session.Close(a.session); err != nil {
		result = multierror.Append(result, fmt.Errorf("close session: %w", err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close spool store: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Status reports cache and bus state for the control server.
func (a *App) Status() control.Status {
	st := control.Status{Bus: bus.StateDisconnected.String()}
	if a.bus != nil {
		st.Bus = a.bus.State().String()
		st.Topics = a.bus.Topics()
	}
	if a.guilds != nil {
		st.CachedGuilds = len(a.guilds.Guilds())
	}
	if a.users != nil {
		st.DirtyUsers = a.users.DirtyCount()
	}
	if a.tracker != nil {
		st.DirtyGuilds = a.tracker.DirtyCount()
	}
	return st
}

// Flush writes back dirty users and guild snapshots right away.
func (a *App) Flush(ctx context.Context) (int, int, error) {
	var (
		result        *multierror.Error
		users, guilds int
		err           error
	)
	if a.users != nil {
		if users, err = a.users.FlushDirty(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.tracker != nil {
		if guilds, err = a.tracker.Flush(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return users, guilds, result.ErrorOrNil()
}

// RefreshGuild reloads a guild's settings as an invalidation event would.
func (a *App) RefreshGuild(ctx context.Context, guildID models.Snowflake, setting string) error {
	if a.guilds == nil {
		return fmt.Errorf("not started")
	}
	if err := a.guilds.Refresh(ctx, guildID, setting); err != nil {
		return err
	}
	if a.reconciler != nil && a.gateway != nil && a.gateway.HasGuild(guildID) {
		return a.reconciler.ReconcileSetting(ctx, guildID, setting)
	}
	return nil
}

func parseGuildIDs(raw []string) ([]models.Snowflake, error) {
	out := make([]models.Snowflake, 0, len(raw))
	for _, s := range raw {
		id, err := models.ParseSnowflake(s)
		if err != nil {
			return nil, fmt.Errorf("subscribe guilds: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}
