package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"

	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// State is the lifecycle position of a Bus.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateSubscribed
	StateListening
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	default:
		return "disconnected"
	}
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, ev Event) error

var (
	ErrNotSubscribed    = errors.New("bus is not subscribed")
	ErrAlreadyListening = errors.New("bus is already listening")
)

// Bus subscribes to guild topics and dispatches each event to the handler
// registered for its kind.
type Bus struct {
	opts *redis.Options

	mu       sync.Mutex
	state    State
	client   *redis.Client
	pubsub   *redis.PubSub
	topics   mapset.Set[string]
	handlers map[Kind]Handler
	cancel   context.CancelFunc
	done     chan struct{}

	dedupe *ttlcache.Cache[uint64, struct{}]
}

// New returns a disconnected bus. Identical payloads arriving within
// dedupeTTL of one that was handled successfully are dropped; a zero
// dedupeTTL disables that.
func New(opts *redis.Options, dedupeTTL time.Duration) *Bus {
	b := &Bus{
		opts:     opts,
		topics:   mapset.NewThreadUnsafeSet[string](),
		handlers: make(map[Kind]Handler),
	}
	if dedupeTTL > 0 {
		b.dedupe = ttlcache.New[uint64, struct{}](
			ttlcache.WithTTL[uint64, struct{}](dedupeTTL),
			ttlcache.WithDisableTouchOnHit[uint64, struct{}](),
		)
	}
	return b
}

func (b *Bus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Client returns the connected Redis client, or nil.
func (b *Bus) Client() *redis.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Connect opens the Redis connection. It is a no-op when already connected.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(ctx)
}

func (b *Bus) connectLocked(ctx context.Context) error {
	if b.client != nil {
		return nil
	}
	if b.opts == nil {
		return fmt.Errorf("redis options are not set")
	}
	client := redis.NewClient(b.opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect to redis %s: %w", b.opts.Addr, err)
	}
	b.client = client
	b.state = StateConnected
	log.BusLogger().Info("Bus connected", "addr", b.opts.Addr)
	return nil
}

// RegisterHandler sets the handler for kind, replacing any earlier one.
func (b *Bus) RegisterHandler(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, replaced := b.handlers[kind]; replaced {
		log.BusLogger().Debug("Replacing event handler", "event", string(kind))
	}
	b.handlers[kind] = h
}

func (b *Bus) handler(kind Kind) (Handler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handlers[kind]
	return h, ok
}

// Subscribe listens on the topic of each guild in guildIDs, or on every
// guild topic when none are given. It connects first if needed and may be
// called again to add topics.
func (b *Bus) Subscribe(ctx context.Context, guildIDs ...models.Snowflake) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.connectLocked(ctx); err != nil {
		return err
	}
	if b.pubsub == nil {
		b.pubsub = b.client.Subscribe(ctx)
	}

	if len(guildIDs) == 0 {
		pattern := WildcardTopic()
		if !b.topics.Contains(pattern) {
			if err := b.pubsub.PSubscribe(ctx, pattern); err != nil {
				return fmt.Errorf("psubscribe %s: %w", pattern, err)
			}
			b.topics.Add(pattern)
			log.BusLogger().Info("Subscribed to all guilds", "pattern", pattern)
		}
	} else {
		var fresh []string
		for _, id := range guildIDs {
			if topic := Topic(id); !b.topics.Contains(topic) {
				fresh = append(fresh, topic)
			}
		}
		if len(fresh) > 0 {
			if err := b.pubsub.Subscribe(ctx, fresh...); err != nil {
				return fmt.Errorf("subscribe to %d guild topics: %w", len(fresh), err)
			}
			b.topics.Append(fresh...)
			log.BusLogger().Info("Subscribed to guild topics", "count", len(fresh))
		}
	}
	if b.state == StateConnected {
		b.state = StateSubscribed
	}
	return nil
}

// Topics returns the subscribed channels and patterns.
func (b *Bus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topics.ToSlice()
}

// Listen receives and dispatches events until ctx is done, Stop is called
// or the subscription is closed. A malformed message or a failing handler
// is logged and skipped.
func (b *Bus) Listen(ctx context.Context) error {
	b.mu.Lock()
	if b.pubsub == nil {
		b.mu.Unlock()
		return ErrNotSubscribed
	}
	if b.state == StateListening || b.state == StateStopping {
		b.mu.Unlock()
		return ErrAlreadyListening
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel, b.done = cancel, done
	b.state = StateListening
	messages := b.pubsub.Channel()
	b.mu.Unlock()

	if b.dedupe != nil {
		go b.dedupe.Start()
	}
	defer func() {
		if b.dedupe != nil {
			b.dedupe.Stop()
		}
		cancel()
		b.mu.Lock()
		if b.state == StateListening || b.state == StateStopping {
			b.state = StateSubscribed
		}
		b.cancel, b.done = nil, nil
		b.mu.Unlock()
		close(done)
	}()

	log.BusLogger().Info("Listening for events")
	for {
		select {
		case <-loopCtx.Done():
			log.BusLogger().Info("Stopped listening for events")
			return nil
		case msg, ok := <-messages:
			if !ok {
				log.BusLogger().Info("Subscription closed")
				return nil
			}
			b.dispatch(loopCtx, msg.Channel, msg.Payload)
		}
	}
}

// dispatch handles one raw message. It never panics.
func (b *Bus) dispatch(ctx context.Context, channel, payload string) {
	var ev Event
	defer func() {
		if r := recover(); r != nil {
			log.ErrorLoggerRaw().Error("Event handler panicked",
				"event", string(ev.Kind), "guild_id", ev.GuildID.String(),
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	key := xxhash.Sum64String(payload)
	if b.dedupe != nil && b.dedupe.Has(key) {
		log.BusLogger().Debug("Dropping duplicate event", "channel", channel)
		return
	}

	ev, err := Decode([]byte(payload))
	if errors.Is(err, ErrUnknownKind) {
		log.BusLogger().Debug("Ignoring event of unknown kind", "channel", channel, "event", string(ev.Kind))
		return
	}
	if err != nil {
		log.BusLogger().Warn("Dropping undecodable event", "channel", channel, "error", err)
		return
	}

	h, ok := b.handler(ev.Kind)
	if !ok {
		log.BusLogger().Debug("No handler for event", "event", string(ev.Kind), "guild_id", ev.GuildID.String())
		return
	}
	if err := h(ctx, ev); err != nil {
		log.BusLogger().Error("Event handler failed",
			"event", string(ev.Kind), "guild_id", ev.GuildID.String(), "error", err)
		return
	}
	// Only handled payloads count as seen, so a redelivery can retry a failure.
	if b.dedupe != nil {
		b.dedupe.Set(key, struct{}{}, ttlcache.DefaultTTL)
	}
}

// Stop signals the listen loop and waits for it to exit or for ctx.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateListening && b.state != StateStopping {
		b.mu.Unlock()
		return nil
	}
	b.state = StateStopping
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for listen loop: %w", ctx.Err())
	}
}

// Disconnect stops listening and releases the subscription and client.
func (b *Bus) Disconnect(ctx context.Context) error {
	stopErr := b.Stop(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	if stopErr != nil {
		errs = append(errs, stopErr)
	}
	if b.pubsub != nil {
		if err := b.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub: %w", err))
		}
		b.pubsub = nil
	}
	if b.client != nil {
		if err := b.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis client: %w", err))
		}
		b.client = nil
	}
	b.topics.Clear()
	b.state = StateDisconnected
	log.BusLogger().Info("Bus disconnected")
	return errors.Join(errs...)
}
