package app

import (
	"context"
	"sync"
	"time"

	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

type guildSettings interface {
	Refresh(ctx context.Context, guildID models.Snowflake, name string) error
	Reset(ctx context.Context, guildID models.Snowflake) error
	Disable(ctx context.Context, guildID models.Snowflake) error
}

type guildUsers interface {
	Init(ctx context.Context, guildID models.Snowflake) (int, error)
	EvictGuild(guildID models.Snowflake)
}

type guildSnapshots interface {
	MarkDirty(guildID models.Snowflake)
	Sync(ctx context.Context, guildID models.Snowflake) error
	Delete(ctx context.Context, guildID models.Snowflake) error
}

type commandSync interface {
	ReconcileSetting(ctx context.Context, guildID models.Snowflake, setting string) error
	ReconcileGuilds(ctx context.Context, guildIDs []models.Snowflake)
}

// lifecycle keeps the caches in step with the guilds the bot is in.
type lifecycle struct {
	settings  guildSettings
	users     guildUsers
	snapshots guildSnapshots
	commands  commandSync
	onReady   func()

	// guildTimeout bounds the loading of each guild on Ready.
	guildTimeout time.Duration

	readyOnce sync.Once
}

// Ready loads every guild's settings and users, schedules a snapshot push
// and reconciles commands. Each guild gets its own time budget, so a slow
// guild does not starve the ones after it. onReady runs after the first
// Ready only.
func (l *lifecycle) Ready(ctx context.Context, guildIDs []models.Snowflake) {
	for i, id := range guildIDs {
		if err := ctx.Err(); err != nil {
			log.ApplicationLogger().Warn("Guild loading aborted",
				"done", i, "remaining", len(guildIDs)-i, "error", err)
			break
		}
		l.loadGuild(ctx, id)
	}
	l.commands.ReconcileGuilds(ctx, guildIDs)
	l.readyOnce.Do(func() {
		log.ApplicationLogger().Info("Guild state loaded", "guilds", len(guildIDs))
		if l.onReady != nil {
			l.onReady()
		}
	})
}

func (l *lifecycle) loadGuild(ctx context.Context, id models.Snowflake) {
	if l.guildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.guildTimeout)
		defer cancel()
	}
	if err := l.settings.Refresh(ctx, id, ""); err != nil {
		log.ApplicationLogger().Warn("Guild settings not fully loaded", "guild_id", id.String(), "error", err)
	}
	if n, err := l.users.Init(ctx, id); err != nil {
		log.ApplicationLogger().Warn("Guild users not loaded", "guild_id", id.String(), "error", err)
	} else {
		log.ApplicationLogger().Debug("Loaded guild users", "guild_id", id.String(), "count", n)
	}
	l.snapshots.MarkDirty(id)
}

// GuildJoined starts a new guild from default settings.
func (l *lifecycle) GuildJoined(ctx context.Context, guildID models.Snowflake) {
	if err := l.settings.Reset(ctx, guildID); err != nil {
		log.ApplicationLogger().Warn("Reset of joined guild incomplete", "guild_id", guildID.String(), "error", err)
	}
	if err := l.snapshots.Sync(ctx, guildID); err != nil {
		log.ApplicationLogger().Warn("Snapshot of joined guild not pushed", "guild_id", guildID.String(), "error", err)
		l.snapshots.MarkDirty(guildID)
	}
	if err := l.commands.ReconcileSetting(ctx, guildID, ""); err != nil {
		log.ApplicationLogger().Warn("Command reconciliation failed", "guild_id", guildID.String(), "error", err)
	}
}

// GuildRemoved disables the guild on the backend and drops its local state.
func (l *lifecycle) GuildRemoved(ctx context.Context, guildID models.Snowflake) {
	if err := l.settings.Disable(ctx, guildID); err != nil {
		log.ApplicationLogger().Warn("Could not disable removed guild", "guild_id", guildID.String(), "error", err)
	}
	if err := l.snapshots.Delete(ctx, guildID); err != nil {
		log.ApplicationLogger().Warn("Could not delete removed guild data", "guild_id", guildID.String(), "error", err)
	}
	l.users.EvictGuild(guildID)
}
