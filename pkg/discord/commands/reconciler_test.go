package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/plana/pkg/models"
)

type fakeRegistrar struct {
	registered mapset.Set[string]
	adds       []string
	removes    []string
	listErr    error

	// block makes listing wait for the caller's context to end.
	block  bool
	listed []models.Snowflake
}

func newFakeRegistrar(names ...string) *fakeRegistrar {
	return &fakeRegistrar{registered: mapset.NewSet(names...)}
}

func (f *fakeRegistrar) GuildCommandNames(ctx context.Context, guildID models.Snowflake) (mapset.Set[string], error) {
	f.listed = append(f.listed, guildID)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.registered.Clone(), nil
}

func (f *fakeRegistrar) AddGuildCommand(_ context.Context, _ models.Snowflake, name string) error {
	f.adds = append(f.adds, name)
	f.registered.Add(name)
	return nil
}

func (f *fakeRegistrar) RemoveGuildCommand(_ context.Context, _ models.Snowflake, name string) error {
	f.removes = append(f.removes, name)
	f.registered.Remove(name)
	return nil
}

type staticSettings struct{ s models.GuildSettings }

func (s staticSettings) Get(context.Context, models.Snowflake) models.GuildSettings { return s.s }

func settingsWith(levels, achievements bool, feeds int) models.GuildSettings {
	s := models.DefaultGuildSettings(1)
	s.Levels.Enabled = levels
	s.Achievements.Enabled = achievements
	for i := 0; i < feeds; i++ {
		s.RSSFeeds = append(s.RSSFeeds, models.RSSFeed{Enabled: true})
	}
	return s
}

func TestDesiredState(t *testing.T) {
	s := settingsWith(true, false, 1)
	assert.True(t, DesiredState(s, CommandLevels))
	assert.False(t, DesiredState(s, CommandAchievements))
	assert.True(t, DesiredState(s, CommandRSS))
	assert.False(t, DesiredState(s, "music"))
	assert.False(t, DesiredState(models.GuildSettings{}, CommandLevels))
}

func TestReconcileIsIdempotent(t *testing.T) {
	reg := newFakeRegistrar(CommandLevels)
	r := NewReconciler(reg, staticSettings{settingsWith(true, false, 0)})

	action, err := r.Reconcile(context.Background(), 1, CommandLevels, true)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, action)
	assert.Empty(t, reg.adds)
	assert.Empty(t, reg.removes)
}

func TestReconcileAddsAndRemovesOnce(t *testing.T) {
	reg := newFakeRegistrar(CommandRSS)
	r := NewReconciler(reg, staticSettings{})
	ctx := context.Background()

	action, err := r.Reconcile(ctx, 1, CommandLevels, true)
	require.NoError(t, err)
	assert.Equal(t, ActionAdded, action)

	action, err = r.Reconcile(ctx, 1, CommandLevels, true)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, action)

	action, err = r.Reconcile(ctx, 1, CommandRSS, false)
	require.NoError(t, err)
	assert.Equal(t, ActionRemoved, action)

	assert.Equal(t, []string{CommandLevels}, reg.adds)
	assert.Equal(t, []string{CommandRSS}, reg.removes)
}

func TestReconcileSetting(t *testing.T) {
	reg := newFakeRegistrar(CommandAchievements)
	r := NewReconciler(reg, staticSettings{settingsWith(true, false, 0)})
	ctx := context.Background()

	require.NoError(t, r.ReconcileSetting(ctx, 1, "welcome"))
	assert.Empty(t, reg.adds)
	assert.Empty(t, reg.removes)

	require.NoError(t, r.ReconcileSetting(ctx, 1, "levels"))
	assert.Equal(t, []string{CommandLevels}, reg.adds)
	assert.Empty(t, reg.removes)

	require.NoError(t, r.ReconcileSetting(ctx, 1, ""))
	assert.Equal(t, []string{CommandLevels}, reg.adds)
	assert.Equal(t, []string{CommandAchievements}, reg.removes)
}

func TestReconcileSettingReportsListFailure(t *testing.T) {
	reg := newFakeRegistrar()
	reg.listErr = errors.New("gateway down")
	r := NewReconciler(reg, staticSettings{settingsWith(true, true, 1)})

	err := r.ReconcileSetting(context.Background(), 1, "")
	assert.Error(t, err)
	assert.Empty(t, reg.adds)

	r.ReconcileGuilds(context.Background(), []models.Snowflake{1, 2})
}

func TestCatalogCoversFeatureCommands(t *testing.T) {
	names := mapset.NewSet[string]()
	for _, c := range Catalog() {
		names.Add(c.Name)
	}
	assert.True(t, names.Equal(mapset.NewSet(Feature...)))
}

func TestReconcileGuildsBoundsEachGuild(t *testing.T) {
	reg := newFakeRegistrar()
	reg.block = true
	r := NewReconciler(reg, staticSettings{settingsWith(true, false, 0)}, WithGuildTimeout(20*time.Millisecond))

	r.ReconcileGuilds(context.Background(), []models.Snowflake{1, 2, 3})
	assert.True(t, mapset.NewSet(reg.listed...).Equal(mapset.NewSet[models.Snowflake](1, 2, 3)),
		"every guild must be attempted, got %v", reg.listed)
}

func TestReconcileGuildsStopsWhenCancelled(t *testing.T) {
	reg := newFakeRegistrar()
	r := NewReconciler(reg, staticSettings{settingsWith(true, false, 0)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.ReconcileGuilds(ctx, []models.Snowflake{1, 2})
	assert.Empty(t, reg.listed)
	assert.Empty(t, reg.adds)
}
