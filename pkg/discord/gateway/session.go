package gateway

import (
	"github.com/bwmarrin/discordgo"
)

// discordSession is the subset of discordgo.Session the gateway uses.
type discordSession interface {
	StateGuilds() []*discordgo.Guild
	StateGuild(id string) (*discordgo.Guild, error)
	StateChannel(id string) (*discordgo.Channel, error)
	ApplicationID() string
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionsRemoveAll(channelID, messageID string, options ...discordgo.RequestOption) error
}

type discordSessionAdapter struct {
	session *discordgo.Session
}

func (d discordSessionAdapter) StateGuilds() []*discordgo.Guild {
	if d.session == nil || d.session.State == nil {
		return nil
	}
	d.session.State.RLock()
	defer d.session.State.RUnlock()
	return append([]*discordgo.Guild(nil), d.session.State.Guilds...)
}

func (d discordSessionAdapter) StateGuild(id string) (*discordgo.Guild, error) {
	if d.session == nil || d.session.State == nil {
		return nil, discordgo.ErrStateNotFound
	}
	return d.session.State.Guild(id)
}

func (d discordSessionAdapter) StateChannel(id string) (*discordgo.Channel, error) {
	if d.session == nil || d.session.State == nil {
		return nil, discordgo.ErrStateNotFound
	}
	return d.session.State.Channel(id)
}

func (d discordSessionAdapter) ApplicationID() string {
	if d.session == nil || d.session.State == nil || d.session.State.User == nil {
		return ""
	}
	return d.session.State.User.ID
}

func (d discordSessionAdapter) ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	return d.session.ApplicationCommands(appID, guildID, options...)
}

func (d discordSessionAdapter) ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	return d.session.ApplicationCommandCreate(appID, guildID, cmd, options...)
}

func (d discordSessionAdapter) ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error {
	return d.session.ApplicationCommandDelete(appID, guildID, cmdID, options...)
}

func (d discordSessionAdapter) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendComplex(channelID, data, options...)
}

func (d discordSessionAdapter) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return d.session.ChannelMessageEditComplex(m, options...)
}

func (d discordSessionAdapter) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	return d.session.ChannelMessageDelete(channelID, messageID, options...)
}

func (d discordSessionAdapter) MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error {
	return d.session.MessageReactionAdd(channelID, messageID, emojiID, options...)
}

func (d discordSessionAdapter) MessageReactionsRemoveAll(channelID, messageID string, options ...discordgo.RequestOption) error {
	return d.session.MessageReactionsRemoveAll(channelID, messageID, options...)
}
