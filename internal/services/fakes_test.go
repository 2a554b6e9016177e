package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/storage"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
)

var testNow = time.Unix(1_700_000_000, 0)

func fixedClock() auth.Clock {
	return auth.ClockFunc(func() time.Time { return testNow })
}

type recordingSink struct {
	events []types.AuditEvent
}

func (s *recordingSink) Record(_ context.Context, event types.AuditEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) kinds() []types.AuditKind {
	out := make([]types.AuditKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

type memUsers struct {
	users map[string]types.User
}

func newMemUsers(users ...types.User) *memUsers {
	m := &memUsers{users: map[string]types.User{}}
	for _, u := range users {
		m.users[u.Username] = u
	}
	return m
}

func (m *memUsers) Get(_ context.Context, username string) (types.User, error) {
	u, ok := m.users[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) List(context.Context) ([]types.User, error) {
	out := make([]types.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memUsers) Count(context.Context) (int, error) {
	return len(m.users), nil
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	if _, ok := m.users[user.Username]; ok {
		return types.User{}, store.ErrConflict
	}
	m.users[user.Username] = user
	return user, nil
}

func (m *memUsers) update(username string, fn func(*types.User)) (types.User, error) {
	u, ok := m.users[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	fn(&u)
	m.users[username] = u
	return u, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, username, hash string) (types.User, error) {
	return m.update(username, func(u *types.User) { u.PasswordHash = hash })
}

func (m *memUsers) UpdatePermissions(_ context.Context, username string, perms []types.Permission) (types.User, error) {
	return m.update(username, func(u *types.User) { u.Permissions = perms })
}

func (m *memUsers) UpdatePasswordChangeRequested(_ context.Context, username string, requested bool) (types.User, error) {
	return m.update(username, func(u *types.User) { u.PasswordChangeRequested = requested })
}

func (m *memUsers) Rename(_ context.Context, username, newUsername string) (types.User, error) {
	u, ok := m.users[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if _, taken := m.users[newUsername]; taken {
		return types.User{}, store.ErrConflict
	}
	delete(m.users, username)
	u.Username = newUsername
	m.users[newUsername] = u
	return u, nil
}

func (m *memUsers) Delete(_ context.Context, username string) (int64, error) {
	if _, ok := m.users[username]; !ok {
		return 0, nil
	}
	delete(m.users, username)
	return 1, nil
}

type memTokens struct {
	tokens    map[string]types.Token
	conflicts int
	creates   int
}

func newMemTokens(tokens ...types.Token) *memTokens {
	m := &memTokens{tokens: map[string]types.Token{}}
	for _, t := range tokens {
		m.tokens[t.ID] = t
	}
	return m
}

func (m *memTokens) Get(_ context.Context, id string) (types.Token, error) {
	t, ok := m.tokens[id]
	if !ok {
		return types.Token{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memTokens) ListByOwner(_ context.Context, owner string) ([]types.Token, error) {
	var out []types.Token
	for _, t := range m.tokens {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Expiry < out[j].Expiry })
	return out, nil
}

func (m *memTokens) Create(_ context.Context, token types.Token) (types.Token, error) {
	m.creates++
	if m.conflicts > 0 {
		m.conflicts--
		return types.Token{}, store.ErrConflict
	}
	if _, ok := m.tokens[token.ID]; ok {
		return types.Token{}, store.ErrConflict
	}
	m.tokens[token.ID] = token
	return token, nil
}

func (m *memTokens) Update(_ context.Context, token types.Token) (types.Token, error) {
	if _, ok := m.tokens[token.ID]; !ok {
		return types.Token{}, store.ErrNotFound
	}
	m.tokens[token.ID] = token
	return token, nil
}

func (m *memTokens) Delete(_ context.Context, id string) (int64, error) {
	if _, ok := m.tokens[id]; !ok {
		return 0, nil
	}
	delete(m.tokens, id)
	return 1, nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var removed int64
	for id, t := range m.tokens {
		if t.IsExpired(now) {
			delete(m.tokens, id)
			removed++
		}
	}
	return removed, nil
}

type memMods struct {
	mods     map[string]types.Mod
	versions []types.Version
}

func newMemMods(mods ...types.Mod) *memMods {
	m := &memMods{mods: map[string]types.Mod{}}
	for _, mod := range mods {
		m.mods[mod.ID] = mod
	}
	return m
}

func (m *memMods) List(context.Context) ([]types.Mod, error) {
	out := make([]types.Mod, 0, len(m.mods))
	for _, mod := range m.mods {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memMods) Get(_ context.Context, id string) (types.Mod, error) {
	mod, ok := m.mods[id]
	if !ok {
		return types.Mod{}, store.ErrNotFound
	}
	return mod, nil
}

func (m *memMods) Create(_ context.Context, mod types.Mod) (types.Mod, error) {
	if _, ok := m.mods[mod.ID]; ok {
		return types.Mod{}, store.ErrConflict
	}
	m.mods[mod.ID] = mod
	return mod, nil
}

func (m *memMods) Update(_ context.Context, mod types.Mod) (types.Mod, error) {
	if _, ok := m.mods[mod.ID]; !ok {
		return types.Mod{}, store.ErrNotFound
	}
	m.mods[mod.ID] = mod
	return mod, nil
}

func (m *memMods) Delete(_ context.Context, id string) error {
	if _, ok := m.mods[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.mods, id)
	kept := m.versions[:0]
	for _, v := range m.versions {
		if v.Mod != id {
			kept = append(kept, v)
		}
	}
	m.versions = kept
	return nil
}

func (m *memMods) ListVersions(_ context.Context, modID string) ([]types.Version, error) {
	out := []types.Version{}
	for _, v := range m.versions {
		if v.Mod == modID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memMods) CreateVersion(_ context.Context, version types.Version) (types.Version, error) {
	for _, v := range m.versions {
		if v.Key() == version.Key() {
			return types.Version{}, store.ErrConflict
		}
	}
	m.versions = append(m.versions, version)
	return version, nil
}

func (m *memMods) DeleteVersion(_ context.Context, key types.VersionKey) error {
	for i, v := range m.versions {
		if v.Key() == key {
			m.versions = append(m.versions[:i], m.versions[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type memRedirects struct {
	redirects map[string]types.Redirect
}

func newMemRedirects(redirects ...types.Redirect) *memRedirects {
	m := &memRedirects{redirects: map[string]types.Redirect{}}
	for _, r := range redirects {
		m.redirects[r.ID] = r
	}
	return m
}

func (m *memRedirects) List(context.Context) ([]types.Redirect, error) {
	out := make([]types.Redirect, 0, len(m.redirects))
	for _, r := range m.redirects {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memRedirects) Get(_ context.Context, id string) (types.Redirect, error) {
	r, ok := m.redirects[id]
	if !ok {
		return types.Redirect{}, store.ErrNotFound
	}
	return r, nil
}

func (m *memRedirects) GetByPath(_ context.Context, path string) (types.Redirect, error) {
	for _, r := range m.redirects {
		if r.Path == path {
			return r, nil
		}
	}
	return types.Redirect{}, store.ErrNotFound
}

func (m *memRedirects) Create(_ context.Context, redirect types.Redirect) (types.Redirect, error) {
	for _, r := range m.redirects {
		if r.ID == redirect.ID || r.Path == redirect.Path {
			return types.Redirect{}, store.ErrConflict
		}
	}
	m.redirects[redirect.ID] = redirect
	return redirect, nil
}

func (m *memRedirects) Update(_ context.Context, redirect types.Redirect) (types.Redirect, error) {
	if _, ok := m.redirects[redirect.ID]; !ok {
		return types.Redirect{}, store.ErrNotFound
	}
	for _, r := range m.redirects {
		if r.ID != redirect.ID && r.Path == redirect.Path {
			return types.Redirect{}, store.ErrConflict
		}
	}
	m.redirects[redirect.ID] = redirect
	return redirect, nil
}

func (m *memRedirects) Delete(_ context.Context, id string) error {
	if _, ok := m.redirects[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.redirects, id)
	return nil
}

type memObjects struct {
	objects      map[string][]byte
	contentTypes map[string]string
	modified     map[string]time.Time
}

func newMemObjects() *memObjects {
	return &memObjects{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
		modified:     map[string]time.Time{},
	}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	if _, ok := m.modified[key]; !ok {
		m.modified[key] = testNow
	}
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: m.modified[key]})
		}
	}
	return out, nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}
