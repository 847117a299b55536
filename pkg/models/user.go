package models

import (
	"encoding/json"
	"maps"
	"slices"
)

// UserKey identifies a user record inside a guild.
type UserKey struct {
	GuildID Snowflake
	UserID  Snowflake
}

// User is a guild member record with an open property bag. Each entry of Data
// holds the raw JSON of one typed Property.
type User struct {
	ID      Snowflake                  `json:"id,omitempty"`
	UserID  Snowflake                  `json:"user_id"`
	GuildID Snowflake                  `json:"guild_id"`
	Data    map[string]json.RawMessage `json:"user_data"`
}

func NewUser(guildID, userID Snowflake) *User {
	return &User{GuildID: guildID, UserID: userID, Data: map[string]json.RawMessage{}}
}

func (u *User) Key() UserKey { return UserKey{GuildID: u.GuildID, UserID: u.UserID} }

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Data = make(map[string]json.RawMessage, len(u.Data))
	for k, v := range u.Data {
		out.Data[k] = slices.Clone(v)
	}
	return &out
}

// PropertyNames returns the names of the populated slots in sorted order.
func (u *User) PropertyNames() []string {
	return slices.Sorted(maps.Keys(u.Data))
}

// Property is a typed record stored under a fixed name in a User's data bag.
type Property interface {
	PropertyName() string
}

// LevelRecord is a user's progress in the leveling feature.
type LevelRecord struct {
	XP           int `json:"xp"`
	Level        int `json:"level"`
	MessagesSent int `json:"messages_sent"`
}

func (LevelRecord) PropertyName() string { return "levels" }

// Less orders records by XP, breaking ties on messages sent.
func (r LevelRecord) Less(other LevelRecord) bool {
	if r.XP == other.XP {
		return r.MessagesSent < other.MessagesSent
	}
	return r.XP < other.XP
}

// Stats holds a user's activity counters.
type Stats struct {
	MessageCount         int      `json:"message_count"`
	CharacterCount       int      `json:"character_count"`
	WordCount            int      `json:"word_count"`
	AttachmentCount      int      `json:"attachment_count"`
	LinkCount            int      `json:"link_count"`
	MentionGiven         int      `json:"mention_given"`
	MentionReceived      int      `json:"mention_received"`
	ReactionsGiven       int      `json:"reactions_given"`
	ReactionsReceived    int      `json:"reactions_received"`
	VoiceMinutes         int      `json:"voice_minutes"`
	MuteMinutes          int      `json:"mute_minutes"`
	DeafenMinutes        int      `json:"deafen_minutes"`
	StreamMinutes        int      `json:"stream_minutes"`
	ThreadsCreated       int      `json:"threads_created"`
	ThreadsParticipated  int      `json:"threads_participated"`
	SlashCommandsUsed    int      `json:"slash_commands_used"`
	MessagesDeleted      int      `json:"messages_deleted"`
	UnlockedAchievements []string `json:"unlocked_achievements"`
}

func (Stats) PropertyName() string { return "stats" }

func (Stats) Defaults() Stats {
	return Stats{UnlockedAchievements: []string{}}
}

// ActivityScore weighs the counters into a single ranking value.
func (s Stats) ActivityScore() float64 {
	score := float64(s.MessageCount) +
		float64(s.ReactionsGiven)*0.5 +
		float64(s.ReactionsReceived)*0.3 +
		float64(s.VoiceMinutes)/60*2 +
		float64(s.ThreadsCreated)*5 +
		float64(s.SlashCommandsUsed)*0.8
	return float64(int64(score*100+0.5)) / 100
}
