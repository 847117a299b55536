// Package bus carries invalidation events between bot processes over Redis
// pub/sub.
package bus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/small-frappuccino/plana/pkg/models"
)

// Kind names an event type.
type Kind string

const (
	KindMessageCreate      Kind = "MESSAGE_CREATE"
	KindMessageUpdate      Kind = "MESSAGE_UPDATE"
	KindMessageDelete      Kind = "MESSAGE_DELETE"
	KindCommandRegister    Kind = "COMMAND_REGISTER"
	KindCommandUnregister  Kind = "COMMAND_UNREGISTER"
	KindGuildConfigRefresh Kind = "GUILD_CONFIG_REFRESH"
)

// Known reports whether k is a kind this process understands.
func (k Kind) Known() bool {
	switch k {
	case KindMessageCreate, KindMessageUpdate, KindMessageDelete,
		KindCommandRegister, KindCommandUnregister, KindGuildConfigRefresh:
		return true
	}
	return false
}

// TopicPrefix starts every guild topic.
const TopicPrefix = "events:"

// Topic returns the channel events for guildID are published on.
func Topic(guildID models.Snowflake) string { return TopicPrefix + guildID.String() }

// WildcardTopic matches every guild topic.
func WildcardTopic() string { return TopicPrefix + "*" }

// ConfigRefresh is the payload of GUILD_CONFIG_REFRESH and of the command
// events: the name of the sub-config or command concerned.
type ConfigRefresh struct {
	Name string `json:"name"`
}

// Event is a decoded envelope. Data holds *models.Message for the message
// kinds, *ConfigRefresh for the others, or nil when the envelope had none.
type Event struct {
	Kind      Kind
	GuildID   models.Snowflake
	Data      any
	Timestamp time.Time
}

// Message returns the message payload, if any.
func (e Event) Message() (*models.Message, bool) {
	m, ok := e.Data.(*models.Message)
	return m, ok && m != nil
}

// ConfigRefresh returns the refresh payload, if any.
func (e Event) ConfigRefresh() (*ConfigRefresh, bool) {
	c, ok := e.Data.(*ConfigRefresh)
	return c, ok && c != nil
}

type envelope struct {
	Event     Kind              `json:"event"`
	GuildID   models.Snowflake  `json:"guild_id"`
	Data      json.RawMessage   `json:"data"`
	Timestamp *models.Timestamp `json:"timestamp,omitempty"`
}

var (
	ErrMalformedEnvelope = errors.New("malformed event envelope")
	ErrUnknownKind       = errors.New("unknown event kind")
)

// Decode parses an envelope. The kind is read first and selects the payload
// schema. An unknown kind returns the partially decoded event together with
// ErrUnknownKind.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	ev := Event{Kind: env.Event, GuildID: env.GuildID}
	if env.Timestamp != nil {
		ev.Timestamp = env.Timestamp.Time
	}
	if env.Event == "" {
		return ev, fmt.Errorf("%w: missing event kind", ErrMalformedEnvelope)
	}
	if !env.Event.Known() {
		return ev, fmt.Errorf("%w: %q", ErrUnknownKind, env.Event)
	}
	if env.GuildID == 0 {
		return ev, fmt.Errorf("%w: missing guild_id", ErrMalformedEnvelope)
	}
	if isNull(env.Data) {
		return ev, nil
	}

	switch env.Event {
	case KindMessageCreate, KindMessageUpdate, KindMessageDelete:
		var m models.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return ev, fmt.Errorf("%w: %s data: %v", ErrMalformedEnvelope, env.Event, err)
		}
		ev.Data = &m
	default:
		var c ConfigRefresh
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return ev, fmt.Errorf("%w: %s data: %v", ErrMalformedEnvelope, env.Event, err)
		}
		c.Name = strings.TrimSpace(c.Name)
		ev.Data = &c
	}
	return ev, nil
}

// Encode builds the wire form of ev. A zero timestamp is replaced by now.
func Encode(ev Event) ([]byte, error) {
	env := envelope{Event: ev.Kind, GuildID: ev.GuildID}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	env.Timestamp = &models.Timestamp{Time: ts}
	if ev.Data == nil {
		env.Data = json.RawMessage("null")
	} else {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s data: %w", ev.Kind, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
