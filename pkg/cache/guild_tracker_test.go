package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/small-frappuccino/plana/pkg/models"
)

func TestGuildTrackerFlush(t *testing.T) {
	store := newFakeGuildDataStore()
	store.existing[1] = true
	store.fail[3] = errors.New("500")
	source := fakeSnapshots{
		1: {ID: 1, Name: "one"},
		2: {ID: 2, Name: "two"},
		3: {ID: 3, Name: "three"},
	}
	tr := NewGuildTracker(store, source)
	for _, id := range []models.Snowflake{1, 2, 3, 4} {
		tr.MarkDirty(id)
	}

	n, err := tr.Flush(context.Background())
	if err == nil {
		t.Fatalf("expected error for guild 3")
	}
	if n != 2 {
		t.Fatalf("expected two guilds synced, got %d", n)
	}
	if tr.IsDirty(1) || tr.IsDirty(2) {
		t.Fatalf("synced guilds must be clean")
	}
	if !tr.IsDirty(3) {
		t.Fatalf("failed guild must stay dirty")
	}
	if tr.IsDirty(4) {
		t.Fatalf("guild missing from the gateway must be dropped")
	}
	if !store.existing[2] {
		t.Fatalf("expected guild 2 to be created after PUT found nothing")
	}
}

func TestGuildTrackerSyncAndDelete(t *testing.T) {
	store := newFakeGuildDataStore()
	tr := NewGuildTracker(store, fakeSnapshots{1: {ID: 1}})
	ctx := context.Background()

	if err := tr.Sync(ctx, 1); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if err := tr.Sync(ctx, 2); err == nil {
		t.Fatalf("expected error for unknown guild")
	}

	tr.MarkDirty(1)
	if err := tr.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if tr.IsDirty(1) || store.existing[1] {
		t.Fatalf("expected guild to be forgotten")
	}
	want := []string{"PUT 1", "POST 1", "DELETE 1"}
	if len(store.calls) != len(want) {
		t.Fatalf("calls=%v, want %v", store.calls, want)
	}
	for i := range want {
		if store.calls[i] != want[i] {
			t.Fatalf("calls=%v, want %v", store.calls, want)
		}
	}
}

type fakeGuildSpool struct {
	ids []models.Snowflake
}

func (f *fakeGuildSpool) SavePendingGuilds(_ context.Context, ids []models.Snowflake) error {
	f.ids = append(f.ids, ids...)
	return nil
}

func (f *fakeGuildSpool) LoadPendingGuilds(context.Context) ([]models.Snowflake, error) {
	return f.ids, nil
}

func (f *fakeGuildSpool) ClearPendingGuilds(context.Context) error {
	f.ids = nil
	return nil
}

func TestGuildTrackerSpoolAndRestore(t *testing.T) {
	spool := &fakeGuildSpool{}
	tr := NewGuildTracker(newFakeGuildDataStore(), fakeSnapshots{}, WithGuildSpooler(spool))
	tr.MarkDirty(9)
	ctx := context.Background()

	if n, err := tr.Spool(ctx); err != nil || n != 1 {
		t.Fatalf("Spool()=%d, %v", n, err)
	}

	next := NewGuildTracker(newFakeGuildDataStore(), fakeSnapshots{}, WithGuildSpooler(spool))
	if n, err := next.Restore(ctx); err != nil || n != 1 {
		t.Fatalf("Restore()=%d, %v", n, err)
	}
	if !next.IsDirty(9) {
		t.Fatalf("restored guild must be dirty")
	}
	if len(spool.ids) != 0 {
		t.Fatalf("expected spool to be cleared")
	}
}
