package models

import "encoding/json"

type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline *bool  `json:"inline,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Timestamp   *Timestamp   `json:"timestamp,omitempty"`
	Color       *int         `json:"color,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Image       string       `json:"image,omitempty"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// Message is a stored message definition. MessageID is the id of the copy
// posted to Discord, zero until it has been sent.
type Message struct {
	ID         Snowflake         `json:"id,omitempty"`
	Name       string            `json:"name,omitempty"`
	MessageID  Snowflake         `json:"message_id,omitempty"`
	GuildID    Snowflake         `json:"guild_id,omitempty"`
	ChannelID  Snowflake         `json:"channel_id,omitempty"`
	Content    string            `json:"content,omitempty"`
	Embeds     []Embed           `json:"embeds,omitempty"`
	Components []json.RawMessage `json:"components,omitempty"`
	Reactions  []GuildEmoji      `json:"reactions,omitempty"`
	Published  bool              `json:"published"`
	UpdatedAt  *Timestamp        `json:"updated_at,omitempty"`
}
