package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/small-frappuccino/plana/pkg/models"
)

type fakeSettingsStore struct {
	mu        sync.Mutex
	singles   map[models.SettingKind]string
	created   map[models.SettingKind]string
	roles     []models.ReactRoleSetting
	feeds     []models.RSSFeed
	failGet   map[models.SettingKind]error
	failWrite error
	calls     []string

	// beforeGet runs ahead of every GetSetting, outside the lock.
	beforeGet func(kind models.SettingKind)
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{
		singles: map[models.SettingKind]string{},
		created: map[models.SettingKind]string{},
		failGet: map[models.SettingKind]error{},
	}
}

func (f *fakeSettingsStore) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeSettingsStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSettingsStore) set(kind models.SettingKind, body string) {
	f.mu.Lock()
	f.singles[kind] = body
	f.mu.Unlock()
}

func (f *fakeSettingsStore) GetSetting(_ context.Context, _ models.Snowflake, kind models.SettingKind, out any) (bool, error) {
	if f.beforeGet != nil {
		f.beforeGet(kind)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GET " + string(kind))
	if err := f.failGet[kind]; err != nil {
		return false, err
	}
	body, ok := f.singles[kind]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(body), out)
}

func (f *fakeSettingsStore) CreateSetting(_ context.Context, _ models.Snowflake, kind models.SettingKind, _, out any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("POST " + string(kind))
	if f.failWrite != nil {
		return false, f.failWrite
	}
	body, ok := f.created[kind]
	if !ok {
		return false, nil
	}
	f.singles[kind] = body
	return true, json.Unmarshal([]byte(body), out)
}

func (f *fakeSettingsStore) UpdateSetting(_ context.Context, _ models.Snowflake, kind models.SettingKind, body, _ any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(kind.UpdateMethod() + " " + string(kind))
	if f.failWrite != nil {
		return false, f.failWrite
	}
	data, err := json.Marshal(body)
	if err != nil {
		return false, err
	}
	f.singles[kind] = string(data)
	return true, nil
}

func (f *fakeSettingsStore) DeleteSetting(_ context.Context, _ models.Snowflake, kind models.SettingKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DELETE " + string(kind))
	if f.failWrite != nil {
		return f.failWrite
	}
	delete(f.singles, kind)
	return nil
}

func (f *fakeSettingsStore) ListReactRoles(context.Context, models.Snowflake) ([]models.ReactRoleSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GET react_roles")
	if err := f.failGet[models.SettingReactRoles]; err != nil {
		return nil, err
	}
	return append([]models.ReactRoleSetting{}, f.roles...), nil
}

func (f *fakeSettingsStore) ListRSSFeeds(context.Context, models.Snowflake) ([]models.RSSFeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GET rss")
	if err := f.failGet[models.SettingRSS]; err != nil {
		return nil, err
	}
	return append([]models.RSSFeed{}, f.feeds...), nil
}

func (f *fakeSettingsStore) DeleteItem(_ context.Context, _ models.Snowflake, kind models.SettingKind, id models.Snowflake) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("DELETE %s/%s", kind, id))
	if f.failWrite != nil {
		return f.failWrite
	}
	switch kind {
	case models.SettingReactRoles:
		var kept []models.ReactRoleSetting
		for _, r := range f.roles {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		f.roles = kept
	case models.SettingRSS:
		var kept []models.RSSFeed
		for _, r := range f.feeds {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		f.feeds = kept
	}
	return nil
}

type fakeUserStore struct {
	mu      sync.Mutex
	users   map[models.UserKey]*models.User
	getErr  error
	bulkErr error
	bulk    [][]*models.User
	nextID  models.Snowflake

	// When set, BulkUpdateUsers signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[models.UserKey]*models.User{}, nextID: 100}
}

func (f *fakeUserStore) GetUser(_ context.Context, g, u models.Snowflake) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	stored, ok := f.users[models.UserKey{GuildID: g, UserID: u}]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, g, u models.Snowflake) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := models.NewUser(g, u)
	f.nextID++
	user.ID = f.nextID
	f.users[user.Key()] = user.Clone()
	return user, true, nil
}

func (f *fakeUserStore) ListUsers(_ context.Context, g models.Snowflake) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for key, u := range f.users {
		if key.GuildID == g {
			out = append(out, u.Clone())
		}
	}
	return out, nil
}

func (f *fakeUserStore) BulkUpdateUsers(_ context.Context, users []*models.User) error {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return f.bulkErr
	}
	f.bulk = append(f.bulk, users)
	for _, u := range users {
		f.users[u.Key()] = u.Clone()
	}
	return nil
}

func (f *fakeUserStore) BulkCalls() [][]*models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]*models.User(nil), f.bulk...)
}

type fakeSpooler struct {
	pending []*models.User
	cleared bool
}

func (s *fakeSpooler) SavePendingUsers(_ context.Context, users []*models.User) error {
	s.pending = append(s.pending, users...)
	return nil
}

func (s *fakeSpooler) LoadPendingUsers(context.Context) ([]*models.User, error) {
	return s.pending, nil
}

func (s *fakeSpooler) ClearPendingUsers(context.Context) error {
	s.pending = nil
	s.cleared = true
	return nil
}

type fakeGuildDataStore struct {
	mu       sync.Mutex
	existing map[models.Snowflake]bool
	fail     map[models.Snowflake]error
	calls    []string
}

func newFakeGuildDataStore() *fakeGuildDataStore {
	return &fakeGuildDataStore{existing: map[models.Snowflake]bool{}, fail: map[models.Snowflake]error{}}
}

func (f *fakeGuildDataStore) UpdateGuildData(_ context.Context, d *models.GuildData) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "PUT "+d.ID.String())
	if err := f.fail[d.ID]; err != nil {
		return false, err
	}
	return f.existing[d.ID], nil
}

func (f *fakeGuildDataStore) CreateGuildData(_ context.Context, d *models.GuildData) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "POST "+d.ID.String())
	f.existing[d.ID] = true
	return true, nil
}

func (f *fakeGuildDataStore) DeleteGuildData(_ context.Context, id models.Snowflake) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "DELETE "+id.String())
	delete(f.existing, id)
	return nil
}

type fakeSnapshots map[models.Snowflake]*models.GuildData

func (f fakeSnapshots) GuildSnapshot(id models.Snowflake) (*models.GuildData, bool) {
	d, ok := f[id]
	return d, ok
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
