package gateway

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// DirtyMarker records guilds whose structure changed.
type DirtyMarker interface {
	MarkDirty(guildID models.Snowflake)
}

// Lifecycle receives guild membership changes of the bot.
type Lifecycle interface {
	// Ready runs once the session is identified, with every guild it serves.
	Ready(ctx context.Context, guildIDs []models.Snowflake)
	// GuildJoined runs when the bot is added to a new guild.
	GuildJoined(ctx context.Context, guildID models.Snowflake)
	// GuildRemoved runs when the bot is kicked or the guild is deleted.
	GuildRemoved(ctx context.Context, guildID models.Snowflake)
}

// Hooks turns gateway events into dirty marks and lifecycle calls.
//
// Handlers run on their own goroutines, so a GuildCreate may be handled
// before the Ready that lists its guild. Joins are therefore told apart by
// the membership time carried in the event: only a guild joined after the
// hooks were created is new.
type Hooks struct {
	dirty     DirtyMarker
	lifecycle Lifecycle
	timeout   time.Duration
	since     time.Time
}

// NewHooks returns hooks whose join and removal handling is bounded by
// timeout. Ready handling is left to the lifecycle, which bounds each guild.
func NewHooks(dirty DirtyMarker, lifecycle Lifecycle, timeout time.Duration) *Hooks {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Hooks{dirty: dirty, lifecycle: lifecycle, timeout: timeout, since: time.Now()}
}

// Register adds the handlers to s.
func (h *Hooks) Register(s *discordgo.Session) {
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.Ready) { h.onReady(e) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) { h.onGuildCreate(e) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildDelete) { h.onGuildDelete(e) })

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildUpdate) {
		if e.Guild != nil {
			h.mark(e.ID)
		}
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleCreate) { h.mark(e.GuildID) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleUpdate) { h.mark(e.GuildID) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleDelete) { h.mark(e.GuildID) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildEmojisUpdate) { h.mark(e.GuildID) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildStickersUpdate) { h.mark(e.GuildID) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
		if e.Member != nil {
			h.mark(e.GuildID)
		}
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
		if e.Member != nil {
			h.mark(e.GuildID)
		}
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelCreate) { h.onChannel(e.Channel) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelUpdate) { h.onChannel(e.Channel) })
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelDelete) { h.onChannel(e.Channel) })
}

func (h *Hooks) mark(guildID string) {
	id := snowflake(guildID)
	if id == 0 || h.dirty == nil {
		return
	}
	h.dirty.MarkDirty(id)
}

func (h *Hooks) onChannel(ch *discordgo.Channel) {
	if ch == nil || ch.GuildID == "" {
		return
	}
	h.mark(ch.GuildID)
}

func (h *Hooks) onReady(e *discordgo.Ready) {
	ids := make([]models.Snowflake, 0, len(e.Guilds))
	for _, g := range e.Guilds {
		if g == nil {
			continue
		}
		if id := snowflake(g.ID); id != 0 {
			ids = append(ids, id)
		}
	}
	log.DiscordLogger().Info("Session ready", "guilds", len(ids))
	if h.lifecycle == nil {
		return
	}
	h.lifecycle.Ready(context.Background(), ids)
}

// onGuildCreate treats a guild as joined only when its membership started
// after the hooks were created. Every other GuildCreate fills in state for
// a guild the bot was already in, so its snapshot is marked for the next
// flush.
func (h *Hooks) onGuildCreate(e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	id := snowflake(e.ID)
	if id == 0 {
		return
	}
	if !e.JoinedAt.After(h.since) {
		h.mark(e.ID)
		return
	}
	log.DiscordLogger().Info("Joined guild", "guild_id", e.ID, "name", e.Name)
	if h.lifecycle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	h.lifecycle.GuildJoined(ctx, id)
}

// onGuildDelete ignores outages, which arrive with Unavailable set.
func (h *Hooks) onGuildDelete(e *discordgo.GuildDelete) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	id := snowflake(e.ID)
	if id == 0 {
		return
	}
	log.DiscordLogger().Info("Removed from guild", "guild_id", e.ID)
	if h.lifecycle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	h.lifecycle.GuildRemoved(ctx, id)
}
