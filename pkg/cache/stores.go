package cache

import (
	"context"

	"github.com/small-frappuccino/plana/pkg/models"
)

// SettingsStore is the part of the backend client the guild cache uses.
type SettingsStore interface {
	GetSetting(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, out any) (bool, error)
	CreateSetting(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, body, out any) (bool, error)
	UpdateSetting(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, body, out any) (bool, error)
	DeleteSetting(ctx context.Context, guildID models.Snowflake, kind models.SettingKind) error
	ListReactRoles(ctx context.Context, guildID models.Snowflake) ([]models.ReactRoleSetting, error)
	ListRSSFeeds(ctx context.Context, guildID models.Snowflake) ([]models.RSSFeed, error)
	DeleteItem(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, itemID models.Snowflake) error
}

// UserStore is the part of the backend client the user cache uses.
type UserStore interface {
	GetUser(ctx context.Context, guildID, userID models.Snowflake) (*models.User, bool, error)
	CreateUser(ctx context.Context, guildID, userID models.Snowflake) (*models.User, bool, error)
	ListUsers(ctx context.Context, guildID models.Snowflake) ([]*models.User, error)
	BulkUpdateUsers(ctx context.Context, users []*models.User) error
}

// GuildDataStore persists structural guild snapshots.
type GuildDataStore interface {
	UpdateGuildData(ctx context.Context, data *models.GuildData) (bool, error)
	CreateGuildData(ctx context.Context, data *models.GuildData) (bool, error)
	DeleteGuildData(ctx context.Context, guildID models.Snowflake) error
}

// Spooler keeps user snapshots that could not be flushed before exit.
type Spooler interface {
	SavePendingUsers(ctx context.Context, users []*models.User) error
	LoadPendingUsers(ctx context.Context) ([]*models.User, error)
	ClearPendingUsers(ctx context.Context) error
}

// GuildSpooler keeps ids of guilds whose snapshot was not pushed before exit.
type GuildSpooler interface {
	SavePendingGuilds(ctx context.Context, guildIDs []models.Snowflake) error
	LoadPendingGuilds(ctx context.Context) ([]models.Snowflake, error)
	ClearPendingGuilds(ctx context.Context) error
}

// SnapshotSource derives the live structural snapshot of a guild.
type SnapshotSource interface {
	GuildSnapshot(guildID models.Snowflake) (*models.GuildData, bool)
}
