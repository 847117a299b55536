package cache

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// GuildTracker records guilds whose structure changed on the gateway and
// pushes a freshly derived snapshot of each on Flush.
type GuildTracker struct {
	store  GuildDataStore
	source SnapshotSource
	spool  GuildSpooler
	dirty  *DirtySet[models.Snowflake]
}

type GuildTrackerOption func(*GuildTracker)

// WithGuildSpooler keeps unsynced guild ids across restarts.
func WithGuildSpooler(s GuildSpooler) GuildTrackerOption {
	return func(t *GuildTracker) { t.spool = s }
}

func NewGuildTracker(store GuildDataStore, source SnapshotSource, opts ...GuildTrackerOption) *GuildTracker {
	t := &GuildTracker{store: store, source: source, dirty: NewDirtySet[models.Snowflake]()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *GuildTracker) MarkDirty(guildID models.Snowflake) { t.dirty.Mark(guildID) }

func (t *GuildTracker) IsDirty(guildID models.Snowflake) bool { return t.dirty.Contains(guildID) }

func (t *GuildTracker) DirtyCount() int { return t.dirty.Len() }

// Flush pushes a snapshot for every dirty guild. Guilds no longer visible
// on the gateway are dropped. A guild whose push fails stays dirty and does
// not stop the others; the failures are returned together.
func (t *GuildTracker) Flush(ctx context.Context) (int, error) {
	captured := t.dirty.Capture()
	var (
		result *multierror.Error
		synced int
	)
	for guildID, gen := range captured {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		snap, ok := t.source.GuildSnapshot(guildID)
		if !ok {
			log.DiscordLogger().Info("Dropping dirty guild no longer on the gateway", "guild_id", guildID.String())
			t.dirty.ClearOne(guildID, gen)
			continue
		}
		if err := t.push(ctx, snap); err != nil {
			result = multierror.Append(result, fmt.Errorf("guild %s: %w", guildID, err))
			continue
		}
		t.dirty.ClearOne(guildID, gen)
		synced++
	}
	return synced, result.ErrorOrNil()
}

// Sync pushes the current snapshot of one guild right away.
func (t *GuildTracker) Sync(ctx context.Context, guildID models.Snowflake) error {
	snap, ok := t.source.GuildSnapshot(guildID)
	if !ok {
		return fmt.Errorf("guild %s is not available on the gateway", guildID)
	}
	if err := t.push(ctx, snap); err != nil {
		return fmt.Errorf("sync guild %s: %w", guildID, err)
	}
	return nil
}

// Delete forgets a guild and removes its stored snapshot.
func (t *GuildTracker) Delete(ctx context.Context, guildID models.Snowflake) error {
	t.dirty.Discard(guildID)
	if err := t.store.DeleteGuildData(ctx, guildID); err != nil {
		return fmt.Errorf("delete data of guild %s: %w", guildID, err)
	}
	return nil
}

// push replaces the stored snapshot, creating it when the backend has none.
func (t *GuildTracker) push(ctx context.Context, snap *models.GuildData) error {
	found, err := t.store.UpdateGuildData(ctx, snap)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	found, err = t.store.CreateGuildData(ctx, snap)
	if err != nil {
		return err
	}
	if !found {
		log.BackendLogger().Warn("Backend returned no record for created guild data", "guild_id", snap.ID.String())
	}
	return nil
}

// Spool saves the ids of guilds still dirty so the next start resyncs them.
func (t *GuildTracker) Spool(ctx context.Context) (int, error) {
	if t.spool == nil {
		return 0, nil
	}
	captured := t.dirty.Capture()
	if len(captured) == 0 {
		return 0, nil
	}
	ids := make([]models.Snowflake, 0, len(captured))
	for id := range captured {
		ids = append(ids, id)
	}
	if err := t.spool.SavePendingGuilds(ctx, ids); err != nil {
		return 0, fmt.Errorf("spool %d guilds: %w", len(ids), err)
	}
	return len(ids), nil
}

// Restore marks spooled guild ids dirty again and empties the spool.
func (t *GuildTracker) Restore(ctx context.Context) (int, error) {
	if t.spool == nil {
		return 0, nil
	}
	ids, err := t.spool.LoadPendingGuilds(ctx)
	if err != nil {
		return 0, fmt.Errorf("load spooled guilds: %w", err)
	}
	for _, id := range ids {
		t.dirty.Mark(id)
	}
	if err := t.spool.ClearPendingGuilds(ctx); err != nil {
		return len(ids), fmt.Errorf("clear guild spool: %w", err)
	}
	return len(ids), nil
}
