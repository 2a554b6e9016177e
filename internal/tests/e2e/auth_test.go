//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/modcatalog/apiserver/config"
	"github.com/modcatalog/apiserver/internal/db"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/server"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestTokenScopedAccess(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("alice_%d", time.Now().UnixNano())
	password := "testpass123!"

	if err := createSuperadmin(username, password); err != nil {
		t.Fatalf("create superadmin: %v", err)
	}

	login, status := doJSON[loginResponse](t, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login: unexpected status %d", status)
	}
	if len(login.Token.ID) != 86 {
		t.Fatalf("login token id has length %d", len(login.Token.ID))
	}
	if login.Token.Reason != "login" {
		t.Fatalf("unexpected login reason %q", login.Token.Reason)
	}

	self, status := doJSON[types.UserView](t, http.MethodGet, baseURL+"/api/users/self", login.Token.ID, nil)
	if status != http.StatusOK || self.Username != username {
		t.Fatalf("self: status %d username %q", status, self.Username)
	}

	limited, status := doJSON[types.Token](t, http.MethodPost, baseURL+"/api/auth/token", login.Token.ID, map[string]any{
		"permissions": []string{"mod:create", "bogus"},
		"reason":      "ci",
	})
	if status != http.StatusCreated {
		t.Fatalf("create token: unexpected status %d", status)
	}
	if len(limited.Permissions) != 1 || limited.Permissions[0] != types.PermModCreate {
		t.Fatalf("unexpected limited permissions %v", limited.Permissions)
	}

	modID := fmt.Sprintf("mod-%d", time.Now().UnixNano())
	_, status = doJSON[types.Mod](t, http.MethodPost, baseURL+"/api/mods", limited.ID, map[string]string{
		"id":   modID,
		"name": "E2E Mod",
		"url":  "https://example.com",
	})
	if status != http.StatusCreated {
		t.Fatalf("create mod: unexpected status %d", status)
	}

	denied, status := doJSON[errorResponse](t, http.MethodDelete, baseURL+"/api/mods/"+modID, limited.ID, nil)
	if status != http.StatusForbidden {
		t.Fatalf("delete mod with limited token: unexpected status %d", status)
	}
	if len(denied.Details) != 1 || denied.Details[0] != "mod:delete" {
		t.Fatalf("unexpected details %v", denied.Details)
	}

	_, status = doJSON[map[string]string](t, http.MethodDelete, baseURL+"/api/auth/token/"+limited.ID, login.Token.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("delete token: unexpected status %d", status)
	}

	_, status = doJSON[errorResponse](t, http.MethodGet, baseURL+"/api/auth/token", limited.ID, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("deleted token: unexpected status %d", status)
	}

	_, status = doJSON[errorResponse](t, http.MethodDelete, baseURL+"/api/mods/"+modID, login.Token.ID, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete mod: unexpected status %d", status)
	}
}

func TestMissingCredential(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)

	_, status := doJSON[errorResponse](t, http.MethodGet, baseURL+"/api/users", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", status)
	}
}

type loginResponse struct {
	Token types.Token    `json:"token"`
	User  types.UserView `json:"user"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

func doJSON[T any](t *testing.T, method, url, token string, body any) (T, int) {
	t.Helper()

	var out T
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, url, err, data)
		}
	}
	return out, resp.StatusCode
}

func createSuperadmin(username, password string) error {
	ctx := context.Background()
	cfg := config.LoadConfig()
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	users := services.NewUserService(store.NewUserRepository(conn), services.Deps{})
	if _, err := users.Create(ctx, "e2e", username, password); err != nil {
		return err
	}
	_, err = users.SetPermissions(ctx, "e2e", username, []types.Permission{types.PermSuperadmin})
	return err
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setEnv() {
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "modcatalog")
	_ = os.Setenv("DB_PASSWORD", "modcatalog")
	_ = os.Setenv("DB_NAME", "modcatalog")
	_ = os.Setenv("DB_SSL", "false")
	_ = os.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "modcatalog")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg, logging.Discard())
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start(context.Background())
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
