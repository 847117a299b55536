package session

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/plana/pkg/errutil"
	"github.com/small-frappuccino/plana/pkg/log"
)

// Error messages
const (
	ErrSessionCreationFailed   = "failed to create Discord session: %w"
	ErrSessionConnectionFailed = "failed to connect to Discord: %w"
)

// Intents is the gateway intent set the bot identifies with.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildEmojis |
	discordgo.IntentMessageContent

var (
	newSession = func(token string) (*discordgo.Session, error) {
		return discordgo.New("Bot " + token)
	}
	openSession = func(s *discordgo.Session) error {
		return s.Open()
	}
	closeSession = func(s *discordgo.Session) error {
		return s.Close()
	}
)

// NewDiscordSession creates a session for token and opens the gateway
// connection. Each setup function runs before the connection opens, so
// handlers it adds see the first Ready. A session that fails to connect is
// closed before returning.
func NewDiscordSession(token string, setup ...func(*discordgo.Session)) (*discordgo.Session, error) {
	if token == "" {
		log.ErrorLoggerRaw().Error("Discord bot token is empty")
		return nil, fmt.Errorf("discord bot token is empty")
	}

	var s *discordgo.Session
	if err := errutil.HandleGatewayError("create_session", func() error {
		var sessionErr error
		s, sessionErr = newSession(token)
		return sessionErr
	}); err != nil {
		return nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}

	s.Identify.Intents = Intents
	s.StateEnabled = true
	for _, fn := range setup {
		fn(s)
	}

	log.DiscordLogger().Info("Connecting to Discord")
	if err := errutil.HandleGatewayError("connect", func() error {
		return openSession(s)
	}); err != nil {
		if closeErr := closeSession(s); closeErr != nil {
			log.DiscordLogger().Warn("Closing failed session returned an error", "error", closeErr)
		}
		return nil, fmt.Errorf(ErrSessionConnectionFailed, err)
	}

	log.DiscordLogger().Info("Connected to Discord")
	return s, nil
}

// Close closes the gateway connection, tolerating a nil session.
func Close(s *discordgo.Session) error {
	if s == nil {
		return nil
	}
	return errutil.HandleGatewayError("close_session", func() error {
		return closeSession(s)
	})
}
