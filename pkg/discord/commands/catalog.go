// Package commands decides which feature commands each guild should have
// and keeps Discord's registrations in line with the guild settings.
package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/plana/pkg/models"
)

// Feature command names.
const (
	CommandLevels       = "levels"
	CommandAchievements = "achievements"
	CommandRSS          = "rss"
)

// Feature lists the commands gated by guild settings.
var Feature = []string{CommandLevels, CommandAchievements, CommandRSS}

// DesiredState reports whether a guild with settings s should have command
// name registered. Unknown names are never wanted.
func DesiredState(s models.GuildSettings, name string) bool {
	switch name {
	case CommandLevels:
		return s.Levels != nil && s.Levels.Enabled
	case CommandAchievements:
		return s.Achievements != nil && s.Achievements.Enabled
	case CommandRSS:
		return len(s.RSSFeeds) > 0
	default:
		return false
	}
}

// Catalog returns the definitions registered for each feature command.
func Catalog() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandLevels,
			Description: "Levels and experience",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "rank",
					Description: "Show a member's level",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "member",
							Description: "Member to look up",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "leaderboard",
					Description: "Show the top members of this server",
				},
			},
		},
		{
			Name:        CommandAchievements,
			Description: "Server achievements",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List a member's achievements",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "member",
							Description: "Member to look up",
						},
					},
				},
			},
		},
		{
			Name:        CommandRSS,
			Description: "RSS feeds posted in this server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List the configured feeds",
				},
			},
		},
	}
}
