package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// GuildCache holds the composite configuration of every guild this process
// serves. Entries are created lazily by Get and replaced wholesale by
// Refresh; a cached composite and the sub-configs it points to are never
// mutated after they are stored.
//
// There is no per-guild lock. Two cold Gets for the same guild may both hit
// the backend; the later result wins.
type GuildCache struct {
	store SettingsStore

	mu      sync.RWMutex
	entries map[models.Snowflake]*models.GuildSettings
}

func NewGuildCache(store SettingsStore) *GuildCache {
	return &GuildCache{
		store:   store,
		entries: make(map[models.Snowflake]*models.GuildSettings),
	}
}

func (c *GuildCache) lookup(guildID models.Snowflake) (*models.GuildSettings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[guildID]
	return s, ok
}

// Get returns a private copy of a guild's configuration, fetching and
// caching it on a miss. Sub-configs the backend cannot supply are filled
// with defaults, so Get never fails. A cold load that loses the race with a
// Refresh keeps the refreshed entry, and a load cut short by ctx is returned
// without being cached.
func (c *GuildCache) Get(ctx context.Context, guildID models.Snowflake) models.GuildSettings {
	if s, ok := c.lookup(guildID); ok {
		return s.Clone()
	}
	s, err := c.fetchAll(ctx, guildID, nil)
	if err != nil && ctx.Err() != nil {
		log.BackendLogger().Warn("Guild settings load interrupted; not cached",
			"guild_id", guildID.String(), "error", err)
		return s.Clone()
	}
	c.mu.Lock()
	if cur, ok := c.entries[guildID]; ok {
		s, err = cur, nil
	} else {
		c.entries[guildID] = s
	}
	c.mu.Unlock()
	if err != nil {
		log.BackendLogger().Warn("Guild settings loaded with defaults",
			"guild_id", guildID.String(), "error", err)
	}
	return s.Clone()
}

// Cached reports whether the guild has an entry.
func (c *GuildCache) Cached(guildID models.Snowflake) bool {
	_, ok := c.lookup(guildID)
	return ok
}

// Guilds returns the ids of every cached guild.
func (c *GuildCache) Guilds() []models.Snowflake {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Snowflake, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	return out
}

// Refresh reloads a guild from the backend. With an empty name, or when the
// guild is not cached yet, every sub-config is re-fetched and the entry is
// replaced. With a name, only that sub-config is re-fetched and swapped in;
// its siblings are left untouched. A sub-config that fails to load keeps
// its previous value.
func (c *GuildCache) Refresh(ctx context.Context, guildID models.Snowflake, name string) error {
	prev, cached := c.lookup(guildID)
	if name == "" || !cached {
		next, err := c.fetchAll(ctx, guildID, prev)
		if err != nil && !cached && ctx.Err() != nil {
			// Leave the guild uncached so the next Get loads it again.
			return fmt.Errorf("refresh guild %s: %w", guildID, err)
		}
		c.mu.Lock()
		c.entries[guildID] = next
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("refresh guild %s: %w", guildID, err)
		}
		return nil
	}

	kind, err := models.ParseSettingKind(name)
	if err != nil {
		log.ApplicationLogger().Warn("Ignoring refresh of unknown setting",
			"guild_id", guildID.String(), "setting", name)
		return err
	}

	var fresh models.GuildSettings
	if err := c.fetchKind(ctx, guildID, kind, &fresh); err != nil {
		return fmt.Errorf("refresh %s of guild %s: %w", kind, guildID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.entries[guildID]
	if !ok {
		// Evicted while fetching; a later Get will load everything.
		return nil
	}
	next := *cur
	assignKind(&next, &fresh, kind)
	c.entries[guildID] = &next
	return nil
}

// Reset deletes every sub-config of the guild on the backend, including all
// collection items, and then reloads the guild, which leaves it at defaults.
// Delete failures are collected; the reload runs regardless.
func (c *GuildCache) Reset(ctx context.Context, guildID models.Snowflake) error {
	var result *multierror.Error

	for _, kind := range models.SettingKinds {
		if kind.Collection() {
			continue
		}
		if err := c.store.DeleteSetting(ctx, guildID, kind); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete %s: %w", kind, err))
		}
	}

	roles, err := c.store.ListReactRoles(ctx, guildID)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("list react_roles: %w", err))
	}
	for _, r := range roles {
		if err := c.store.DeleteItem(ctx, guildID, models.SettingReactRoles, r.ID); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete react_roles/%s: %w", r.ID, err))
		}
	}
	feeds, err := c.store.ListRSSFeeds(ctx, guildID)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("list rss: %w", err))
	}
	for _, f := range feeds {
		if err := c.store.DeleteItem(ctx, guildID, models.SettingRSS, f.ID); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete rss/%s: %w", f.ID, err))
		}
	}

	c.Evict(guildID)
	if err := c.Refresh(ctx, guildID, ""); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Update applies fn to a private copy of the cached configuration and stores
// the result. It reports false when the guild is not cached.
func (c *GuildCache) Update(guildID models.Snowflake, fn func(*models.GuildSettings)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.entries[guildID]
	if !ok {
		return false
	}
	next := cur.Clone()
	fn(&next)
	next.ID = guildID
	c.entries[guildID] = &next
	return true
}

// Disable marks the bot as disabled for a guild it was removed from, saves
// that preference and drops the entry.
func (c *GuildCache) Disable(ctx context.Context, guildID models.Snowflake) error {
	disabled := false
	body := map[string]any{"enabled": &disabled}
	_, err := c.store.UpdateSetting(ctx, guildID, models.SettingPreferences, body, nil)
	c.Evict(guildID)
	if err != nil {
		return fmt.Errorf("disable guild %s: %w", guildID, err)
	}
	return nil
}

// Evict drops the cached entry of a guild.
func (c *GuildCache) Evict(guildID models.Snowflake) {
	c.mu.Lock()
	delete(c.entries, guildID)
	c.mu.Unlock()
}

// Locale returns the guild's configured language.
func (c *GuildCache) Locale(ctx context.Context, guildID models.Snowflake) string {
	return c.Get(ctx, guildID).Preferences.Locale()
}

// Location returns the guild's configured time zone.
func (c *GuildCache) Location(ctx context.Context, guildID models.Snowflake) *time.Location {
	return c.Get(ctx, guildID).Preferences.Location()
}

// fetchAll loads every sub-config. A sub-config that fails keeps its value
// from prev, or the default when there is none.
func (c *GuildCache) fetchAll(ctx context.Context, guildID models.Snowflake, prev *models.GuildSettings) (*models.GuildSettings, error) {
	next := models.DefaultGuildSettings(guildID)
	if prev != nil {
		next = *prev
	}
	var result *multierror.Error
	for _, kind := range models.SettingKinds {
		var fresh models.GuildSettings
		if err := c.fetchKind(ctx, guildID, kind, &fresh); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		assignKind(&next, &fresh, kind)
	}
	next.ID = guildID
	return &next, result.ErrorOrNil()
}

func (c *GuildCache) fetchKind(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, into *models.GuildSettings) error {
	var err error
	switch kind {
	case models.SettingPreferences:
		into.Preferences, err = fetchSingleton(ctx, c.store, guildID, kind, models.DefaultGuildPreference)
	case models.SettingLevels:
		into.Levels, err = fetchSingleton(ctx, c.store, guildID, kind, models.DefaultLevelSetting)
	case models.SettingWelcome:
		into.Welcome, err = fetchSingleton(ctx, c.store, guildID, kind, models.DefaultWelcomeSetting)
	case models.SettingAchievements:
		into.Achievements, err = fetchSingleton(ctx, c.store, guildID, kind, models.DefaultAchievementSetting)
	case models.SettingAI:
		into.AI, err = fetchSingleton(ctx, c.store, guildID, kind, models.DefaultAISetting)
	case models.SettingReactRoles:
		into.ReactRoles, err = c.store.ListReactRoles(ctx, guildID)
	case models.SettingRSS:
		into.RSSFeeds, err = c.store.ListRSSFeeds(ctx, guildID)
	default:
		err = fmt.Errorf("unknown setting %q", kind)
	}
	return err
}

func assignKind(dst, src *models.GuildSettings, kind models.SettingKind) {
	switch kind {
	case models.SettingPreferences:
		dst.Preferences = src.Preferences
	case models.SettingLevels:
		dst.Levels = src.Levels
	case models.SettingWelcome:
		dst.Welcome = src.Welcome
	case models.SettingAchievements:
		dst.Achievements = src.Achievements
	case models.SettingAI:
		dst.AI = src.AI
	case models.SettingReactRoles:
		dst.ReactRoles = src.ReactRoles
	case models.SettingRSS:
		dst.RSSFeeds = src.RSSFeeds
	}
}

// fetchSingleton reads a singleton sub-config, creating it when the backend
// has none. When creation also yields nothing the defaults are used.
func fetchSingleton[T any](ctx context.Context, store SettingsStore, guildID models.Snowflake, kind models.SettingKind, defaults func(models.Snowflake) *T) (*T, error) {
	v := defaults(guildID)
	found, err := store.GetSetting(ctx, guildID, kind, v)
	if err != nil {
		return nil, err
	}
	if found {
		return v, nil
	}

	v = defaults(guildID)
	found, err = store.CreateSetting(ctx, guildID, kind, nil, v)
	if err != nil {
		log.BackendLogger().Warn("Create setting failed; using defaults",
			"guild_id", guildID.String(), "setting", string(kind), "error", err)
		return defaults(guildID), nil
	}
	if !found {
		return defaults(guildID), nil
	}
	return v, nil
}
