// Package gateway wraps the Discord session with the operations the bot
// needs: guild snapshots, per-guild slash commands and stored messages.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/small-frappuccino/plana/pkg/errutil"
	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// ErrUnknownChannel is returned when a message targets a guild or channel
// the bot cannot see.
var ErrUnknownChannel = errors.New("channel not visible to the bot")

// Gateway is the bot's view of its Discord connection.
type Gateway struct {
	session discordSession
	catalog map[string]*discordgo.ApplicationCommand
}

// New wraps s. catalog holds the definitions AddGuildCommand can register.
func New(s *discordgo.Session, catalog []*discordgo.ApplicationCommand) *Gateway {
	return newGateway(discordSessionAdapter{session: s}, catalog)
}

func newGateway(s discordSession, catalog []*discordgo.ApplicationCommand) *Gateway {
	g := &Gateway{session: s, catalog: make(map[string]*discordgo.ApplicationCommand, len(catalog))}
	for _, cmd := range catalog {
		if cmd != nil && cmd.Name != "" {
			g.catalog[cmd.Name] = cmd
		}
	}
	return g
}

// GuildIDs returns the guilds present in the session state.
func (g *Gateway) GuildIDs() []models.Snowflake {
	guilds := g.session.StateGuilds()
	out := make([]models.Snowflake, 0, len(guilds))
	for _, gu := range guilds {
		if id := snowflake(gu.ID); id != 0 {
			out = append(out, id)
		}
	}
	return out
}

func (g *Gateway) HasGuild(guildID models.Snowflake) bool {
	gu, err := g.session.StateGuild(guildID.String())
	return err == nil && gu != nil
}

// HasChannel reports whether channelID is a visible channel of guildID.
func (g *Gateway) HasChannel(guildID, channelID models.Snowflake) bool {
	if !g.HasGuild(guildID) {
		return false
	}
	ch, err := g.session.StateChannel(channelID.String())
	if err != nil || ch == nil {
		return false
	}
	return ch.GuildID == guildID.String()
}

// GuildSnapshot derives the structural snapshot of a guild from the
// session state.
func (g *Gateway) GuildSnapshot(guildID models.Snowflake) (*models.GuildData, bool) {
	gu, err := g.session.StateGuild(guildID.String())
	if err != nil || gu == nil {
		return nil, false
	}
	return snapshotFromGuild(gu), true
}

func snapshotFromGuild(gu *discordgo.Guild) *models.GuildData {
	data := &models.GuildData{
		ID:                       snowflake(gu.ID),
		Name:                     gu.Name,
		Icon:                     gu.Icon,
		Banner:                   gu.Banner,
		OwnerID:                  snowflake(gu.OwnerID),
		PremiumTier:              int(gu.PremiumTier),
		PremiumSubscriptionCount: gu.PremiumSubscriptionCount,
		Users:                    []models.GuildUser{},
		Roles:                    []models.GuildRole{},
		Emojis:                   []models.GuildEmoji{},
		Stickers:                 []models.GuildSticker{},
		Channels:                 []models.TextChannel{},
		Categories:               []models.GuildCategory{},
	}
	for _, m := range gu.Members {
		if m == nil || m.User == nil || m.User.Bot {
			continue
		}
		data.Users = append(data.Users, models.GuildUser{
			UserID:   snowflake(m.User.ID),
			Username: m.User.Username,
			Avatar:   m.User.Avatar,
		})
	}
	for _, r := range gu.Roles {
		if r == nil {
			continue
		}
		data.Roles = append(data.Roles, models.GuildRole{
			RoleID:      snowflake(r.ID),
			Name:        r.Name,
			Color:       r.Color,
			Permissions: r.Permissions,
			Position:    r.Position,
		})
	}
	for _, e := range gu.Emojis {
		if e == nil {
			continue
		}
		url := discordgo.EndpointEmoji(e.ID)
		if e.Animated {
			url = discordgo.EndpointEmojiAnimated(e.ID)
		}
		data.Emojis = append(data.Emojis, models.GuildEmoji{
			EmojiID:  snowflake(e.ID),
			Name:     e.Name,
			URL:      url,
			Animated: e.Animated,
		})
	}
	for _, s := range gu.Stickers {
		if s == nil {
			continue
		}
		data.Stickers = append(data.Stickers, models.GuildSticker{
			StickerID:   snowflake(s.ID),
			Name:        s.Name,
			URL:         discordgo.EndpointCDN + "stickers/" + s.ID + ".png",
			Description: s.Description,
			Emoji:       s.Tags,
			Format:      int(s.FormatType),
			Available:   s.Available,
		})
	}
	for _, ch := range gu.Channels {
		if ch == nil {
			continue
		}
		switch ch.Type {
		case discordgo.ChannelTypeGuildCategory:
			data.Categories = append(data.Categories, models.GuildCategory{
				CategoryID: snowflake(ch.ID),
				Name:       ch.Name,
				Position:   ch.Position,
			})
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
			data.Channels = append(data.Channels, models.TextChannel{
				ChannelID:  snowflake(ch.ID),
				CategoryID: snowflake(ch.ParentID),
				Name:       ch.Name,
				Position:   ch.Position,
				Topic:      ch.Topic,
				NSFW:       ch.NSFW,
			})
		}
	}
	sort.Slice(data.Roles, func(i, j int) bool { return data.Roles[i].Position < data.Roles[j].Position })
	sort.Slice(data.Channels, func(i, j int) bool { return data.Channels[i].Position < data.Channels[j].Position })
	sort.Slice(data.Categories, func(i, j int) bool { return data.Categories[i].Position < data.Categories[j].Position })
	return data
}

// GuildCommandNames lists the names of the commands registered in a guild.
func (g *Gateway) GuildCommandNames(ctx context.Context, guildID models.Snowflake) (mapset.Set[string], error) {
	cmds, err := g.guildCommands(ctx, guildID)
	if err != nil {
		return nil, err
	}
	names := mapset.NewThreadUnsafeSet[string]()
	for _, c := range cmds {
		names.Add(c.Name)
	}
	return names, nil
}

func (g *Gateway) guildCommands(ctx context.Context, guildID models.Snowflake) ([]*discordgo.ApplicationCommand, error) {
	appID := g.session.ApplicationID()
	if appID == "" {
		return nil, fmt.Errorf("application id unknown: session not ready")
	}
	var cmds []*discordgo.ApplicationCommand
	err := errutil.HandleGatewayError("list_commands", func() error {
		var listErr error
		cmds, listErr = g.session.ApplicationCommands(appID, guildID.String(), discordgo.WithContext(ctx))
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("list commands of guild %s: %w", guildID, err)
	}
	return cmds, nil
}

// AddGuildCommand registers the catalog command name in a guild.
func (g *Gateway) AddGuildCommand(ctx context.Context, guildID models.Snowflake, name string) error {
	def, ok := g.catalog[name]
	if !ok {
		return fmt.Errorf("no definition for command %q", name)
	}
	appID := g.session.ApplicationID()
	if appID == "" {
		return fmt.Errorf("application id unknown: session not ready")
	}
	err := errutil.HandleGatewayError("create_command", func() error {
		_, createErr := g.session.ApplicationCommandCreate(appID, guildID.String(), def, discordgo.WithContext(ctx))
		return createErr
	})
	if err != nil {
		return fmt.Errorf("add command %s to guild %s: %w", name, guildID, err)
	}
	log.DiscordLogger().Info("Registered guild command", "guild_id", guildID.String(), "command", name)
	return nil
}

// RemoveGuildCommand deletes every command called name from a guild. It is
// a no-op when the command is not registered.
func (g *Gateway) RemoveGuildCommand(ctx context.Context, guildID models.Snowflake, name string) error {
	cmds, err := g.guildCommands(ctx, guildID)
	if err != nil {
		return err
	}
	appID := g.session.ApplicationID()
	for _, c := range cmds {
		if c.Name != name {
			continue
		}
		cmdID := c.ID
		if err := errutil.HandleGatewayError("delete_command", func() error {
			return g.session.ApplicationCommandDelete(appID, guildID.String(), cmdID, discordgo.WithContext(ctx))
		}); err != nil {
			return fmt.Errorf("remove command %s from guild %s: %w", name, guildID, err)
		}
		log.DiscordLogger().Info("Removed guild command", "guild_id", guildID.String(), "command", name)
	}
	return nil
}

func snowflake(id string) models.Snowflake {
	if strings.TrimSpace(id) == "" {
		return 0
	}
	v, err := models.ParseSnowflake(id)
	if err != nil {
		return 0
	}
	return v
}
