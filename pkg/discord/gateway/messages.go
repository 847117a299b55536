package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/plana/pkg/errutil"
	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// SendMessage posts msg to its channel, adds its reactions and returns the
// id of the posted message.
func (g *Gateway) SendMessage(ctx context.Context, msg *models.Message) (models.Snowflake, error) {
	if !g.HasChannel(msg.GuildID, msg.ChannelID) {
		return 0, fmt.Errorf("send to channel %s of guild %s: %w", msg.ChannelID, msg.GuildID, ErrUnknownChannel)
	}
	var posted *discordgo.Message
	err := errutil.HandleGatewayError("send_message", func() error {
		var sendErr error
		posted, sendErr = g.session.ChannelMessageSendComplex(msg.ChannelID.String(), toMessageSend(msg), discordgo.WithContext(ctx))
		return sendErr
	})
	if err != nil {
		return 0, fmt.Errorf("send message %s: %w", msg.ID, err)
	}
	if posted == nil {
		return 0, fmt.Errorf("send message %s: empty response", msg.ID)
	}
	g.addReactions(ctx, msg.ChannelID.String(), posted.ID, msg.Reactions)
	return snowflake(posted.ID), nil
}

// EditMessage rewrites the posted copy of msg and resets its reactions. A
// message that was never posted is left alone and false is returned.
func (g *Gateway) EditMessage(ctx context.Context, msg *models.Message) (bool, error) {
	if msg.MessageID == 0 {
		return false, nil
	}
	if !g.HasChannel(msg.GuildID, msg.ChannelID) {
		return false, fmt.Errorf("edit in channel %s of guild %s: %w", msg.ChannelID, msg.GuildID, ErrUnknownChannel)
	}
	channelID, messageID := msg.ChannelID.String(), msg.MessageID.String()
	err := errutil.HandleGatewayError("edit_message", func() error {
		_, editErr := g.session.ChannelMessageEditComplex(toMessageEdit(msg, channelID, messageID), discordgo.WithContext(ctx))
		return editErr
	})
	if err != nil {
		return false, fmt.Errorf("edit message %s: %w", msg.ID, err)
	}
	if err := errutil.HandleGatewayError("clear_reactions", func() error {
		return g.session.MessageReactionsRemoveAll(channelID, messageID, discordgo.WithContext(ctx))
	}); err != nil {
		log.DiscordLogger().Warn("Could not reset reactions", "message_id", messageID, "error", err)
	}
	g.addReactions(ctx, channelID, messageID, msg.Reactions)
	return true, nil
}

// DeleteMessage removes the posted copy of msg. It reports false when msg
// was never posted.
func (g *Gateway) DeleteMessage(ctx context.Context, msg *models.Message) (bool, error) {
	if msg.MessageID == 0 {
		return false, nil
	}
	if !g.HasChannel(msg.GuildID, msg.ChannelID) {
		return false, fmt.Errorf("delete in channel %s of guild %s: %w", msg.ChannelID, msg.GuildID, ErrUnknownChannel)
	}
	err := errutil.HandleGatewayError("delete_message", func() error {
		return g.session.ChannelMessageDelete(msg.ChannelID.String(), msg.MessageID.String(), discordgo.WithContext(ctx))
	})
	if err != nil {
		return false, fmt.Errorf("delete message %s: %w", msg.ID, err)
	}
	return true, nil
}

// addReactions adds each reaction in order. Failures are logged and skipped.
func (g *Gateway) addReactions(ctx context.Context, channelID, messageID string, reactions []models.GuildEmoji) {
	for _, r := range reactions {
		name := r.APIName()
		if name == "" {
			continue
		}
		if err := errutil.HandleGatewayError("add_reaction", func() error {
			return g.session.MessageReactionAdd(channelID, messageID, name, discordgo.WithContext(ctx))
		}); err != nil {
			log.DiscordLogger().Warn("Could not add reaction", "message_id", messageID, "emoji", name, "error", err)
		}
	}
}

func toMessageSend(msg *models.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: msg.Content,
		Embeds:  toEmbeds(msg.Embeds),
	}
}

func toMessageEdit(msg *models.Message, channelID, messageID string) *discordgo.MessageEdit {
	content := msg.Content
	embeds := toEmbeds(msg.Embeds)
	return &discordgo.MessageEdit{
		ID:      messageID,
		Channel: channelID,
		Content: &content,
		Embeds:  &embeds,
	}
}

func toEmbeds(in []models.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(in))
	for _, e := range in {
		em := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
		}
		if e.Timestamp != nil && !e.Timestamp.IsZero() {
			em.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
		}
		if e.Color != nil {
			em.Color = *e.Color
		}
		if e.Footer != nil {
			em.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
		}
		if e.Image != "" {
			em.Image = &discordgo.MessageEmbedImage{URL: e.Image}
		}
		if e.Thumbnail != "" {
			em.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
		}
		if e.Author != nil {
			em.Author = &discordgo.MessageEmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
		}
		for _, f := range e.Fields {
			inline := true
			if f.Inline != nil {
				inline = *f.Inline
			}
			em.Fields = append(em.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: inline})
		}
		out = append(out, em)
	}
	return out
}
