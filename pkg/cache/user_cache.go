package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// ErrUserUnavailable is returned when the backend neither has nor creates a
// user record.
var ErrUserUnavailable = errors.New("user record unavailable")

// UserCache holds per-guild user records and batches their write-back.
//
// Mutations only touch memory and mark the user dirty; FlushDirty writes all
// dirty users in one bulk call. Marking and capturing both happen under mu,
// so a flush snapshot is consistent with the generations it clears.
type UserCache struct {
	store UserStore
	spool Spooler

	mu    sync.Mutex
	users map[models.UserKey]*models.User
	dirty *DirtySet[models.UserKey]

	loads singleflight.Group
}

type UserCacheOption func(*UserCache)

// WithSpooler persists unflushed users across restarts.
func WithSpooler(s Spooler) UserCacheOption {
	return func(c *UserCache) { c.spool = s }
}

func NewUserCache(store UserStore, opts ...UserCacheOption) *UserCache {
	c := &UserCache{
		store: store,
		users: make(map[models.UserKey]*models.User),
		dirty: NewDirtySet[models.UserKey](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init bulk-loads every stored user of a guild. Users with pending local
// changes are kept as they are.
func (c *UserCache) Init(ctx context.Context, guildID models.Snowflake) (int, error) {
	users, err := c.store.ListUsers(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("load users of guild %s: %w", guildID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded := 0
	for _, u := range users {
		key := u.Key()
		if c.dirty.Contains(key) {
			continue
		}
		c.users[key] = u
		loaded++
	}
	return loaded, nil
}

// Get returns a copy of a user record, loading or creating it on a miss.
func (c *UserCache) Get(ctx context.Context, guildID, userID models.Snowflake) (*models.User, error) {
	u, err := c.load(ctx, models.UserKey{GuildID: guildID, UserID: userID})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return u.Clone(), nil
}

// load returns the cached record, fetching it once for concurrent callers.
// The returned pointer is the cached one and must only be used under mu.
func (c *UserCache) load(ctx context.Context, key models.UserKey) (*models.User, error) {
	c.mu.Lock()
	u, ok := c.users[key]
	c.mu.Unlock()
	if ok {
		return u, nil
	}

	v, err, _ := c.loads.Do(fmt.Sprintf("%s:%s", key.GuildID, key.UserID), func() (any, error) {
		fetched, found, err := c.store.GetUser(ctx, key.GuildID, key.UserID)
		if err != nil {
			return nil, err
		}
		if !found {
			fetched, found, err = c.store.CreateUser(ctx, key.GuildID, key.UserID)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, ErrUserUnavailable
			}
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.users[key]; ok {
			return existing, nil
		}
		c.users[key] = fetched
		return fetched, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load user %s in guild %s: %w", key.UserID, key.GuildID, err)
	}
	return v.(*models.User), nil
}

// Refresh re-reads a user from the backend unless it has pending changes.
func (c *UserCache) Refresh(ctx context.Context, guildID, userID models.Snowflake) error {
	key := models.UserKey{GuildID: guildID, UserID: userID}
	fetched, found, err := c.store.GetUser(ctx, guildID, userID)
	if err != nil {
		return fmt.Errorf("refresh user %s in guild %s: %w", userID, guildID, err)
	}
	if !found {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty.Contains(key) {
		log.BackendLogger().Debug("Skipping refresh of user with pending changes",
			"guild_id", guildID.String(), "user_id", userID.String())
		return nil
	}
	c.users[key] = fetched
	return nil
}

// All returns copies of every cached user of a guild.
func (c *UserCache) All(guildID models.Snowflake) []*models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*models.User
	for key, u := range c.users {
		if key.GuildID == guildID {
			out = append(out, u.Clone())
		}
	}
	return out
}

// UpdateProperty stores p in the user's property bag under p's name and
// marks the user dirty. Nothing is written to the backend until the next
// flush.
func (c *UserCache) UpdateProperty(ctx context.Context, guildID, userID models.Snowflake, p models.Property) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.PropertyName(), err)
	}
	key := models.UserKey{GuildID: guildID, UserID: userID}
	u, err := c.load(ctx, key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.users[key]; ok {
		u = cur
	} else {
		c.users[key] = u
	}
	if u.Data == nil {
		u.Data = make(map[string]json.RawMessage)
	}
	u.Data[p.PropertyName()] = raw
	c.dirty.Mark(key)
	return nil
}

// Replace overwrites the whole property bag of a user and marks it dirty.
func (c *UserCache) Replace(ctx context.Context, guildID, userID models.Snowflake, data map[string]json.RawMessage) error {
	key := models.UserKey{GuildID: guildID, UserID: userID}
	if _, err := c.load(ctx, key); err != nil {
		return err
	}
	bag := make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		bag[k] = append(json.RawMessage(nil), v...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[key]
	if !ok {
		u = models.NewUser(guildID, userID)
		c.users[key] = u
	}
	u.Data = bag
	c.dirty.Mark(key)
	return nil
}

// GetProperty decodes the property of type T from a user's bag. A missing
// slot is created empty and decodes to T's defaults. Types with a
// Defaults() T method start from that value instead of the zero value.
func GetProperty[T models.Property](ctx context.Context, c *UserCache, guildID, userID models.Snowflake) (T, error) {
	var v T
	if d, ok := any(v).(interface{ Defaults() T }); ok {
		v = d.Defaults()
	}
	name := v.PropertyName()

	key := models.UserKey{GuildID: guildID, UserID: userID}
	if _, err := c.load(ctx, key); err != nil {
		return v, err
	}

	c.mu.Lock()
	u, ok := c.users[key]
	if !ok {
		c.mu.Unlock()
		return v, fmt.Errorf("user %s in guild %s was evicted", userID, guildID)
	}
	if u.Data == nil {
		u.Data = make(map[string]json.RawMessage)
	}
	raw, ok := u.Data[name]
	if !ok {
		raw = json.RawMessage("{}")
		u.Data[name] = raw
	}
	raw = append(json.RawMessage(nil), raw...)
	c.mu.Unlock()

	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s of user %s: %w", name, userID, err)
	}
	return v, nil
}

// FlushDirty writes every dirty user to the backend in one bulk call. On
// success it clears exactly the captured generations; on failure the dirty
// set is left as it was. It returns the number of users written.
func (c *UserCache) FlushDirty(ctx context.Context) (int, error) {
	captured, batch := c.capture()
	if len(batch) == 0 {
		return 0, nil
	}
	if err := c.store.BulkUpdateUsers(ctx, batch); err != nil {
		return 0, fmt.Errorf("flush %d users: %w", len(batch), err)
	}
	c.dirty.Clear(captured)
	return len(batch), nil
}

func (c *UserCache) capture() (map[models.UserKey]uint64, []*models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	captured := c.dirty.Capture()
	batch := make([]*models.User, 0, len(captured))
	for key := range captured {
		u, ok := c.users[key]
		if !ok {
			c.dirty.Discard(key)
			delete(captured, key)
			continue
		}
		batch = append(batch, u.Clone())
	}
	return captured, batch
}

// DirtyCount returns the number of users waiting for write-back.
func (c *UserCache) DirtyCount() int { return c.dirty.Len() }

// IsDirty reports whether a user has pending changes.
func (c *UserCache) IsDirty(guildID, userID models.Snowflake) bool {
	return c.dirty.Contains(models.UserKey{GuildID: guildID, UserID: userID})
}

// EvictGuild drops the clean users of a guild.
func (c *UserCache) EvictGuild(guildID models.Snowflake) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.users {
		if key.GuildID == guildID && !c.dirty.Contains(key) {
			delete(c.users, key)
		}
	}
}

// Spool saves the users still dirty after the final flush so the next start
// can retry them. It is a no-op without a spooler.
func (c *UserCache) Spool(ctx context.Context) (int, error) {
	if c.spool == nil {
		return 0, nil
	}
	_, batch := c.capture()
	if len(batch) == 0 {
		return 0, nil
	}
	if err := c.spool.SavePendingUsers(ctx, batch); err != nil {
		return 0, fmt.Errorf("spool %d users: %w", len(batch), err)
	}
	return len(batch), nil
}

// Restore loads spooled users into the cache as dirty and empties the spool.
func (c *UserCache) Restore(ctx context.Context) (int, error) {
	if c.spool == nil {
		return 0, nil
	}
	users, err := c.spool.LoadPendingUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("load spooled users: %w", err)
	}
	c.mu.Lock()
	for _, u := range users {
		key := u.Key()
		c.users[key] = u
		c.dirty.Mark(key)
	}
	c.mu.Unlock()
	if err := c.spool.ClearPendingUsers(ctx); err != nil {
		return len(users), fmt.Errorf("clear spool: %w", err)
	}
	return len(users), nil
}
