package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]types.User
}

func (m *memUsers) Get(_ context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) List(context.Context) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memUsers) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return types.User{}, store.ErrConflict
	}
	m.users[user.Username] = user
	return user, nil
}

func (m *memUsers) update(username string, fn func(*types.User)) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return 0, nil
	}
	delete(m.users, username)
	return 1, nil
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]types.Token
}

func (m *memTokens) Get(_ context.Context, id string) (types.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return types.Token{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memTokens) ListByOwner(_ context.Context, owner string) ([]types.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Token
	for _, t := range m.tokens {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTokens) Create(_ context.Context, token types.Token) (types.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.ID]; ok {
		return types.Token{}, store.ErrConflict
	}
	m.tokens[token.ID] = token
	return token, nil
}

func (m *memTokens) Update(_ context.Context, token types.Token) (types.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return token, nil
}

func (m *memTokens) Delete(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return 0, nil
	}
	delete(m.tokens, id)
	return 1, nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	mu       sync.Mutex
	mods     map[string]types.Mod
	versions []types.Version
}

func (m *memMods) List(context.Context) ([]types.Mod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.Mod{}
	for _, mod := range m.mods {
		out = append(out, mod)
	}
	return out, nil
}

func (m *memMods) Get(_ context.Context, id string) (types.Mod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.mods[id]
	if !ok {
		return types.Mod{}, store.ErrNotFound
	}
	return mod, nil
}

func (m *memMods) Create(_ context.Context, mod types.Mod) (types.Mod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mods[mod.ID]; ok {
		return types.Mod{}, store.ErrConflict
	}
	m.mods[mod.ID] = mod
	return mod, nil
}

func (m *memMods) Update(_ context.Context, mod types.Mod) (types.Mod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mods[mod.ID] = mod
	return mod, nil
}

func (m *memMods) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mods[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.mods, id)
	return nil
}

func (m *memMods) ListVersions(_ context.Context, modID string) ([]types.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.Version{}
	for _, v := range m.versions {
		if v.Mod == modID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memMods) CreateVersion(_ context.Context, version types.Version) (types.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions = append(m.versions, version)
	return version, nil
}

func (m *memMods) DeleteVersion(_ context.Context, key types.VersionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.versions {
		if v.Key() == key {
			m.versions = append(m.versions[:i], m.versions[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type memRedirects struct {
	mu        sync.Mutex
	redirects map[string]types.Redirect
}

func (m *memRedirects) List(context.Context) ([]types.Redirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.Redirect{}
	for _, r := range m.redirects {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRedirects) Get(_ context.Context, id string) (types.Redirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.redirects[id]
	if !ok {
		return types.Redirect{}, store.ErrNotFound
	}
	return r, nil
}

func (m *memRedirects) GetByPath(_ context.Context, path string) (types.Redirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.redirects {
		if r.Path == path {
			return r, nil
		}
	}
	return types.Redirect{}, store.ErrNotFound
}

func (m *memRedirects) Create(_ context.Context, redirect types.Redirect) (types.Redirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.redirects {
		if r.ID == redirect.ID || r.Path == redirect.Path {
			return types.Redirect{}, store.ErrConflict
		}
	}
	m.redirects[redirect.ID] = redirect
	return redirect, nil
}

func (m *memRedirects) Update(_ context.Context, redirect types.Redirect) (types.Redirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirects[redirect.ID] = redirect
	return redirect, nil
}

func (m *memRedirects) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.redirects[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.redirects, id)
	return nil
}

// testAPI serves every route group over in-memory repositories.
type testAPI struct {
	router    *chi.Mux
	users     *memUsers
	tokens    *memTokens
	mods      *memMods
	redirects *memRedirects
	tokenSvc  *services.TokenService
	userSvc   *services.UserService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	api := &testAPI{
		users:     &memUsers{users: map[string]types.User{}},
		tokens:    &memTokens{tokens: map[string]types.Token{}},
		mods:      &memMods{mods: map[string]types.Mod{}},
		redirects: &memRedirects{redirects: map[string]types.Redirect{}},
	}

	log := logging.Discard()
	deps := services.Deps{Logger: log}
	api.userSvc = services.NewUserService(api.users, deps)
	api.tokenSvc = services.NewTokenService(api.tokens, api.users, time.Hour, deps)
	modSvc := services.NewModService(api.mods)
	redirectSvc := services.NewRedirectService(api.redirects)
	exportSvc := services.NewExportService(api.mods, api.redirects, nil, deps)
	authz := auth.NewAuthorizer(api.tokens, api.users, nil, log)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) { AuthRouter(r, authz, api.tokenSvc, api.userSvc, log) })
		r.Route("/users", func(r chi.Router) { UserRouter(r, authz, api.userSvc, log) })
		r.Route("/mods", func(r chi.Router) { ModRouter(r, authz, modSvc, log) })
		r.Route("/redirects", func(r chi.Router) { RedirectRouter(r, authz, redirectSvc, log) })
		r.Route("/exports", func(r chi.Router) { ExportRouter(r, authz, exportSvc, log) })
	})
	router.Route("/r", func(r chi.Router) { FollowRouter(r, redirectSvc, log) })
	api.router = router
	return api
}

// addUser stores a user with password "pw" and returns a login token for it.
func (a *testAPI) addUser(t *testing.T, username string, perms ...types.Permission) string {
	t.Helper()
	ctx := context.Background()
	_, err := a.userSvc.Create(ctx, "test", username, "pw")
	require.NoError(t, err)
	_, err = a.userSvc.SetPermissions(ctx, "test", username, perms)
	require.NoError(t, err)
	token, err := a.tokenSvc.Login(ctx, username, "pw")
	require.NoError(t, err)
	return token.ID
}

// addToken stores a token for owner carrying exactly perms.
func (a *testAPI) addToken(t *testing.T, owner string, perms ...types.Permission) string {
	t.Helper()
	id, err := auth.NewTokenID(rand.Reader)
	require.NoError(t, err)
	_, err = a.tokens.Create(context.Background(), types.Token{
		ID:          id,
		Owner:       owner,
		Permissions: perms,
		Expiry:      types.NoExpiry,
	})
	require.NoError(t, err)
	return id
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
