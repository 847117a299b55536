package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/small-frappuccino/plana/pkg/log"
)

// Publisher sends events to the guild topics.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends ev on its guild's topic and returns how many subscribers
// received it.
func (p *Publisher) Publish(ctx context.Context, ev Event) (int64, error) {
	if ev.GuildID == 0 {
		return 0, fmt.Errorf("publish %s: missing guild id", ev.Kind)
	}
	raw, err := Encode(ev)
	if err != nil {
		return 0, err
	}
	topic := Topic(ev.GuildID)
	n, err := p.client.Publish(ctx, topic, raw).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s to %s: %w", ev.Kind, topic, err)
	}
	log.BusLogger().Debug("Published event", "event", string(ev.Kind), "topic", topic, "receivers", n)
	return n, nil
}
