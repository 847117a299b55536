package bus

import (
	"context"
	"fmt"

	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// GuildRefresher reloads cached guild settings.
type GuildRefresher interface {
	Refresh(ctx context.Context, guildID models.Snowflake, name string) error
}

// CommandReconciler aligns registered commands with refreshed settings.
type CommandReconciler interface {
	ReconcileSetting(ctx context.Context, guildID models.Snowflake, setting string) error
}

// MessageGateway is the chat side of the message events.
type MessageGateway interface {
	HasGuild(guildID models.Snowflake) bool
	HasChannel(guildID, channelID models.Snowflake) bool
	SendMessage(ctx context.Context, msg *models.Message) (models.Snowflake, error)
	EditMessage(ctx context.Context, msg *models.Message) (bool, error)
	DeleteMessage(ctx context.Context, msg *models.Message) (bool, error)
}

// MessageStore persists message records.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) (bool, error)
}

// Handlers implements the event handlers of a bot process.
type Handlers struct {
	guilds     GuildRefresher
	reconciler CommandReconciler
	gateway    MessageGateway
	messages   MessageStore
}

func NewHandlers(guilds GuildRefresher, reconciler CommandReconciler, gateway MessageGateway, messages MessageStore) *Handlers {
	return &Handlers{guilds: guilds, reconciler: reconciler, gateway: gateway, messages: messages}
}

// Register installs every handler on b.
func (h *Handlers) Register(b *Bus) {
	b.RegisterHandler(KindGuildConfigRefresh, h.GuildConfigRefresh)
	b.RegisterHandler(KindMessageCreate, h.MessageCreate)
	b.RegisterHandler(KindMessageUpdate, h.MessageUpdate)
	b.RegisterHandler(KindMessageDelete, h.MessageDelete)
}

// GuildConfigRefresh reloads the named sub-config, or the whole guild when
// no name is given, and then reconciles the commands it gates. Guilds this
// process does not serve are ignored.
func (h *Handlers) GuildConfigRefresh(ctx context.Context, ev Event) error {
	if !h.gateway.HasGuild(ev.GuildID) {
		log.BusLogger().Debug("Ignoring refresh for guild not served here", "guild_id", ev.GuildID.String())
		return nil
	}
	var name string
	if c, ok := ev.ConfigRefresh(); ok {
		name = c.Name
	}
	if err := h.guilds.Refresh(ctx, ev.GuildID, name); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := h.reconciler.ReconcileSetting(ctx, ev.GuildID, name); err != nil {
		return fmt.Errorf("reconcile commands: %w", err)
	}
	log.BusLogger().Debug("Refreshed guild configuration", "guild_id", ev.GuildID.String(), "setting", name)
	return nil
}

// MessageCreate posts the message and stores the id of the posted copy.
// A message that already carries a posted id is not posted again.
func (h *Handlers) MessageCreate(ctx context.Context, ev Event) error {
	msg, ok := h.message(ev)
	if !ok {
		return nil
	}
	if msg.MessageID != 0 {
		log.BusLogger().Debug("Skipping create of a message already posted",
			"guild_id", msg.GuildID.String(), "id", msg.ID.String(), "message_id", msg.MessageID.String())
		return nil
	}
	posted, err := h.gateway.SendMessage(ctx, msg)
	if err != nil {
		return err
	}
	msg.MessageID = posted
	if _, err := h.messages.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("save posted message %s: %w", msg.ID, err)
	}
	log.BusLogger().Debug("Posted message", "guild_id", msg.GuildID.String(), "message_id", posted.String())
	return nil
}

// MessageUpdate edits the posted copy. Messages never posted are skipped.
func (h *Handlers) MessageUpdate(ctx context.Context, ev Event) error {
	msg, ok := h.message(ev)
	if !ok {
		return nil
	}
	edited, err := h.gateway.EditMessage(ctx, msg)
	if err != nil {
		return err
	}
	if !edited {
		log.BusLogger().Debug("Skipping edit of unposted message", "guild_id", msg.GuildID.String(), "id", msg.ID.String())
	}
	return nil
}

// MessageDelete removes the posted copy once its channel is confirmed to
// still exist.
func (h *Handlers) MessageDelete(ctx context.Context, ev Event) error {
	msg, ok := h.message(ev)
	if !ok {
		return nil
	}
	if !h.gateway.HasChannel(msg.GuildID, msg.ChannelID) {
		log.BusLogger().Debug("Skipping delete in a channel that no longer exists",
			"guild_id", msg.GuildID.String(), "channel_id", msg.ChannelID.String())
		return nil
	}
	if msg.MessageID == 0 {
		return nil
	}
	_, err := h.gateway.DeleteMessage(ctx, msg)
	return err
}

// message extracts the message payload of a message event served here.
func (h *Handlers) message(ev Event) (*models.Message, bool) {
	msg, ok := ev.Message()
	if !ok {
		log.BusLogger().Warn("Message event without message data", "event", string(ev.Kind), "guild_id", ev.GuildID.String())
		return nil, false
	}
	if !h.gateway.HasGuild(ev.GuildID) {
		return nil, false
	}
	if msg.GuildID == 0 {
		msg.GuildID = ev.GuildID
	}
	return msg, true
}
