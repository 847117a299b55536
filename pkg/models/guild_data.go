package models

// GuildData is the structural snapshot of a guild pushed to the backend.
type GuildData struct {
	ID                       Snowflake       `json:"id"`
	Name                     string          `json:"name"`
	Icon                     string          `json:"icon,omitempty"`
	Banner                   string          `json:"banner,omitempty"`
	OwnerID                  Snowflake       `json:"owner_id"`
	PremiumTier              int             `json:"premium_tier"`
	PremiumSubscriptionCount int             `json:"premium_subscription_count"`
	Users                    []GuildUser     `json:"users"`
	Roles                    []GuildRole     `json:"roles"`
	Emojis                   []GuildEmoji    `json:"emojis"`
	Stickers                 []GuildSticker  `json:"stickers"`
	Channels                 []TextChannel   `json:"channels"`
	Categories               []GuildCategory `json:"categories"`
}

type GuildUser struct {
	UserID   Snowflake `json:"user_id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
}

type GuildRole struct {
	RoleID      Snowflake `json:"role_id"`
	Name        string    `json:"name"`
	Color       int       `json:"color"`
	Permissions int64     `json:"permissions"`
	Position    int       `json:"position"`
}

// GuildEmoji is a custom emoji or, when EmojiID is zero, a unicode emoji
// carried in Name.
type GuildEmoji struct {
	EmojiID  Snowflake `json:"emoji_id,omitempty"`
	Name     string    `json:"name"`
	URL      string    `json:"url,omitempty"`
	Animated bool      `json:"animated"`
}

// APIName is the form Discord's reaction endpoints accept.
func (e GuildEmoji) APIName() string {
	if e.EmojiID == 0 {
		return e.Name
	}
	return e.Name + ":" + e.EmojiID.String()
}

type GuildSticker struct {
	StickerID   Snowflake `json:"sticker_id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Emoji       string    `json:"emoji"`
	Format      int       `json:"format"`
	Available   bool      `json:"available"`
}

type TextChannel struct {
	ChannelID  Snowflake `json:"channel_id"`
	CategoryID Snowflake `json:"category_id"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
	Topic      string    `json:"topic,omitempty"`
	NSFW       bool      `json:"nsfw"`
}

type GuildCategory struct {
	CategoryID Snowflake `json:"category_id"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
}
