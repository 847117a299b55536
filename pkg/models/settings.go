package models

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"
	_ "time/tzdata"
)

// SettingKind names one sub-config of a guild. The names are the ones carried
// by GUILD_CONFIG_REFRESH events.
type SettingKind string

const (
	SettingPreferences  SettingKind = "preferences"
	SettingLevels       SettingKind = "levels"
	SettingWelcome      SettingKind = "welcome"
	SettingAchievements SettingKind = "achievements"
	SettingAI           SettingKind = "ai"
	SettingReactRoles   SettingKind = "react_roles"
	SettingRSS          SettingKind = "rss"
)

// SettingKinds lists every sub-config in fetch order.
var SettingKinds = []SettingKind{
	SettingPreferences,
	SettingLevels,
	SettingWelcome,
	SettingAchievements,
	SettingAI,
	SettingReactRoles,
	SettingRSS,
}

// ParseSettingKind validates a sub-config name.
func ParseSettingKind(name string) (SettingKind, error) {
	k := SettingKind(name)
	if !slices.Contains(SettingKinds, k) {
		return "", fmt.Errorf("unknown setting %q", name)
	}
	return k, nil
}

// Collection reports whether the kind holds a list of items with their own ids.
func (k SettingKind) Collection() bool {
	return k == SettingReactRoles || k == SettingRSS
}

// Resource is the path segment below /guilds/{id}/ for the kind.
func (k SettingKind) Resource() string {
	switch k {
	case SettingReactRoles:
		return "react-roles"
	default:
		return string(k)
	}
}

// UpdateMethod is the HTTP verb the backend expects for saving a singleton.
func (k SettingKind) UpdateMethod() string {
	if k == SettingLevels {
		return "PUT"
	}
	return "PATCH"
}

// GuildSettings is the composite per-guild configuration.
type GuildSettings struct {
	ID           Snowflake
	Preferences  *GuildPreference
	Levels       *LevelSetting
	Welcome      *WelcomeSetting
	Achievements *AchievementSetting
	AI           *AISetting
	ReactRoles   []ReactRoleSetting
	RSSFeeds     []RSSFeed
}

// DefaultGuildSettings returns the documented defaults for every sub-config.
func DefaultGuildSettings(id Snowflake) GuildSettings {
	return GuildSettings{
		ID:           id,
		Preferences:  DefaultGuildPreference(id),
		Levels:       DefaultLevelSetting(id),
		Welcome:      DefaultWelcomeSetting(id),
		Achievements: DefaultAchievementSetting(id),
		AI:           DefaultAISetting(id),
		ReactRoles:   []ReactRoleSetting{},
		RSSFeeds:     []RSSFeed{},
	}
}

// Clone returns a deep copy that shares no memory with g.
func (g GuildSettings) Clone() GuildSettings {
	out := GuildSettings{ID: g.ID}
	out.Preferences = cloneJSON(g.Preferences)
	out.Levels = cloneJSON(g.Levels)
	out.Welcome = cloneJSON(g.Welcome)
	out.Achievements = cloneJSON(g.Achievements)
	out.AI = cloneJSON(g.AI)
	if g.ReactRoles != nil {
		out.ReactRoles = make([]ReactRoleSetting, 0, len(g.ReactRoles))
		for i := range g.ReactRoles {
			out.ReactRoles = append(out.ReactRoles, *cloneJSON(&g.ReactRoles[i]))
		}
	}
	if g.RSSFeeds != nil {
		out.RSSFeeds = make([]RSSFeed, 0, len(g.RSSFeeds))
		for i := range g.RSSFeeds {
			out.RSSFeeds = append(out.RSSFeeds, *cloneJSON(&g.RSSFeeds[i]))
		}
	}
	return out
}

// cloneJSON deep-copies a config record through its wire form. Every record
// in this package round-trips losslessly.
func cloneJSON[T any](v *T) *T {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("models: clone %T: %v", v, err))
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("models: clone %T: %v", v, err))
	}
	return out
}

// GuildPreference holds general bot preferences. Every field is optional.
type GuildPreference struct {
	ID                Snowflake `json:"id,omitempty"`
	Enabled           *bool     `json:"enabled,omitempty"`
	CommandPrefix     *string   `json:"command_prefix,omitempty"`
	Language          *string   `json:"language,omitempty"`
	Timezone          *string   `json:"timezone,omitempty"`
	EmbedColor        *string   `json:"embed_color,omitempty"`
	EmbedFooter       *string   `json:"embed_footer,omitempty"`
	EmbedFooterImages []string  `json:"embed_footer_images,omitempty"`
}

func DefaultGuildPreference(id Snowflake) *GuildPreference {
	return &GuildPreference{ID: id}
}

const (
	DefaultLanguage = "en-US"
	DefaultTimezone = "America/Chicago"
)

// Locale returns the configured language or DefaultLanguage.
func (p *GuildPreference) Locale() string {
	if p == nil || p.Language == nil || *p.Language == "" {
		return DefaultLanguage
	}
	return *p.Language
}

// Location returns the configured IANA zone, falling back to DefaultTimezone
// when the value is unset or unknown.
func (p *GuildPreference) Location() *time.Location {
	if p != nil && p.Timezone != nil && *p.Timezone != "" {
		if loc, err := time.LoadLocation(*p.Timezone); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

type AnnouncementType string

const (
	AnnouncementDisabled       AnnouncementType = "disabled"
	AnnouncementCurrentChannel AnnouncementType = "current_channel"
	AnnouncementPrivateMessage AnnouncementType = "private_message"
	AnnouncementCustomChannel  AnnouncementType = "custom_channel"
)

type RoleReward struct {
	Level   int         `json:"level"`
	RoleIDs []Snowflake `json:"role_ids"`
}

type XPBooster struct {
	RoleID     Snowflake `json:"role_id"`
	Multiplier float64   `json:"multiplier"`
}

// LevelSetting configures the leveling feature.
type LevelSetting struct {
	ID                    Snowflake        `json:"id,omitempty"`
	Enabled               bool             `json:"enabled"`
	XPPerMessage          int              `json:"xp_per_message"`
	XPCooldown            int              `json:"xp_cooldown"`
	BaseXP                int              `json:"base_xp"`
	XPMultiplier          float64          `json:"xp_multiplier"`
	AnnouncementType      AnnouncementType `json:"announcement_type"`
	AnnouncementChannelID Snowflake        `json:"announcement_channel_id,omitempty"`
	AnnouncementMessage   *Message         `json:"announcement_message,omitempty"`
	RoleRewards           []RoleReward     `json:"role_rewards"`
	XPBoosters            []XPBooster      `json:"xp_boosters"`
	TargetXPRoles         []Snowflake      `json:"target_xp_roles"`
	TargetXPRolesMode     bool             `json:"target_xp_roles_mode"`
	TargetXPChannels      []Snowflake      `json:"target_xp_channels"`
	TargetXPChannelsMode  bool             `json:"target_xp_channels_mode"`
	StackRewards          bool             `json:"stack_rewards"`
	MessageLengthBonus    bool             `json:"message_length_bonus"`
	MaxXPPerMessage       int              `json:"max_xp_per_message"`
	UpdatedAt             *Timestamp       `json:"updated_at,omitempty"`
}

func DefaultLevelSetting(id Snowflake) *LevelSetting {
	return &LevelSetting{
		ID:                 id,
		XPPerMessage:       15,
		XPCooldown:         5,
		BaseXP:             100,
		XPMultiplier:       1.2,
		AnnouncementType:   AnnouncementCurrentChannel,
		RoleRewards:        []RoleReward{},
		XPBoosters:         []XPBooster{},
		TargetXPRoles:      []Snowflake{},
		TargetXPChannels:   []Snowflake{},
		StackRewards:       true,
		MessageLengthBonus: true,
		MaxXPPerMessage:    25,
	}
}

func (l *LevelSetting) levelXP(level int) int {
	return int(float64(l.BaseXP) * math.Pow(l.XPMultiplier, float64(level-1)))
}

// XPForLevel returns the total XP required to reach level.
func (l *LevelSetting) XPForLevel(level int) int {
	total := 0
	for lvl := 1; lvl <= level; lvl++ {
		total += l.levelXP(lvl)
	}
	return total
}

// LevelForXP returns the highest level whose total requirement is covered by xp.
func (l *LevelSetting) LevelForXP(xp int) int {
	if xp <= 0 || l.BaseXP <= 0 {
		return 0
	}
	level, total := 0, 0
	for {
		next := l.levelXP(level + 1)
		if next <= 0 || total+next > xp {
			return level
		}
		total += next
		level++
	}
}

// WelcomeSetting configures join and leave greetings.
type WelcomeSetting struct {
	ID               Snowflake   `json:"id,omitempty"`
	Enabled          bool        `json:"enabled"`
	WelcomeChannelID Snowflake   `json:"welcome_channel_id,omitempty"`
	GoodbyeChannelID Snowflake   `json:"goodbye_channel_id,omitempty"`
	DMNewUsers       bool        `json:"dm_new_users"`
	WelcomeMessage   *Message    `json:"welcome_message,omitempty"`
	GoodbyeMessage   *Message    `json:"goodbye_message,omitempty"`
	DMMessage        *Message    `json:"dm_message,omitempty"`
	AutoRoles        []Snowflake `json:"auto_roles"`
	UpdatedAt        *Timestamp  `json:"updated_at,omitempty"`
}

func DefaultWelcomeSetting(id Snowflake) *WelcomeSetting {
	return &WelcomeSetting{ID: id, AutoRoles: []Snowflake{}}
}

type CustomAchievement struct {
	Name          string      `json:"name"`
	IconURL       string      `json:"icon_url,omitempty"`
	CriteriaType  string      `json:"criteria_type,omitempty"`
	CriteriaValue int         `json:"criteria_value"`
	RoleRewards   []Snowflake `json:"role_rewards"`
	XPReward      int         `json:"xp_reward"`
	CoinsReward   int         `json:"coins_reward"`
}

// AchievementSetting configures the achievements feature.
type AchievementSetting struct {
	ID                   Snowflake           `json:"id,omitempty"`
	Enabled              bool                `json:"enabled"`
	AchievementChannelID Snowflake           `json:"achievement_channel_id,omitempty"`
	CustomAchievements   []CustomAchievement `json:"custom_achievements"`
	AchievementMessage   *Message            `json:"achievement_message,omitempty"`
	UpdatedAt            *Timestamp          `json:"updated_at,omitempty"`
}

func DefaultAchievementSetting(id Snowflake) *AchievementSetting {
	return &AchievementSetting{ID: id, CustomAchievements: []CustomAchievement{}}
}

// AISetting configures the language-model assistant.
type AISetting struct {
	ID                 Snowflake   `json:"id,omitempty"`
	Enabled            bool        `json:"enabled"`
	Stream             bool        `json:"stream"`
	EngageMode         bool        `json:"engage_mode"`
	EngageRate         float64     `json:"engage_rate"`
	MemoryType         int         `json:"memory_type"`
	MemoryLimit        int         `json:"memory_limit"`
	SystemPrompt       *string     `json:"system_prompt,omitempty"`
	InputTemplate      string      `json:"input_template"`
	TargetRoles        []Snowflake `json:"target_roles"`
	TargetRolesMode    bool        `json:"target_roles_mode"`
	TargetChannels     []Snowflake `json:"target_channels"`
	TargetChannelsMode bool        `json:"target_channels_mode"`
	AIModeration       bool        `json:"ai_moderation"`
	ReactionResponses  bool        `json:"reaction_responses"`
}

func DefaultAISetting(id Snowflake) *AISetting {
	return &AISetting{
		ID:                id,
		Enabled:           true,
		EngageRate:        0.01,
		MemoryType:        1,
		MemoryLimit:       50,
		InputTemplate:     `{user.mention} asks: "{message.content}"`,
		TargetRoles:       []Snowflake{},
		TargetChannels:    []Snowflake{},
		ReactionResponses: true,
	}
}

type RoleAssignment struct {
	RoleIDs   []Snowflake `json:"role_ids"`
	TriggerID string      `json:"trigger_id"`
}

// ReactRoleSetting binds reactions or components on a message to roles.
type ReactRoleSetting struct {
	ID              Snowflake        `json:"id,omitempty"`
	GuildID         Snowflake        `json:"guild_id,omitempty"`
	MessageID       Snowflake        `json:"message_id,omitempty"`
	Name            string           `json:"name,omitempty"`
	RoleAssignments []RoleAssignment `json:"role_assignments"`
	Enabled         bool             `json:"enabled"`
	UpdatedAt       *Timestamp       `json:"updated_at,omitempty"`
}

func (r *ReactRoleSetting) UnmarshalJSON(data []byte) error {
	type plain ReactRoleSetting
	v := plain{Enabled: true, RoleAssignments: []RoleAssignment{}}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = ReactRoleSetting(v)
	return nil
}

// RSSFeed is one subscribed feed.
type RSSFeed struct {
	ID          Snowflake  `json:"id,omitempty"`
	GuildID     Snowflake  `json:"guild_id,omitempty"`
	ChannelID   Snowflake  `json:"channel_id,omitempty"`
	URL         string     `json:"url,omitempty"`
	Name        string     `json:"name,omitempty"`
	Enabled     bool       `json:"enabled"`
	Message     string     `json:"message,omitempty"`
	LastUpdated *Timestamp `json:"last_updated,omitempty"`
}

func (f *RSSFeed) UnmarshalJSON(data []byte) error {
	type plain RSSFeed
	v := plain{Enabled: true}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = RSSFeed(v)
	return nil
}
