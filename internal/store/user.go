package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/modcatalog/apiserver/types"
)

const userColumns = `username, password_hash, salt, permissions, password_change_requested`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user  types.User
		perms []string
	)
	err := row.Scan(
		&user.Username,
		&user.PasswordHash,
		&user.Salt,
		pq.Array(&perms),
		&user.PasswordChangeRequested,
	)
	if err != nil {
		return types.User{}, err
	}
	user.Permissions = types.ParsePermissions(perms)
	return user, nil
}

func (r *UserRepository) Get(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY username`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns
	created, err := scanUser(r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.PasswordHash,
		user.Salt,
		pq.Array(types.PermissionStrings(user.Permissions)),
		user.PasswordChangeRequested,
	))
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	return created, nil
}

// UpdatePassword stores a new password hash and returns the updated user.
func (r *UserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) (types.User, error) {
	const query = `
		UPDATE users
		SET password_hash = $1
		WHERE username = $2
		RETURNING ` + userColumns
	return r.updateReturning(ctx, query, passwordHash, username)
}

// UpdatePermissions replaces the permission list and returns the updated user.
func (r *UserRepository) UpdatePermissions(ctx context.Context, username string, perms []types.Permission) (types.User, error) {
	const query = `
		UPDATE users
		SET permissions = $1
		WHERE username = $2
		RETURNING ` + userColumns
	return r.updateReturning(ctx, query, pq.Array(types.PermissionStrings(perms)), username)
}

func (r *UserRepository) UpdatePasswordChangeRequested(ctx context.Context, username string, requested bool) (types.User, error) {
	const query = `
		UPDATE users
		SET password_change_requested = $1
		WHERE username = $2
		RETURNING ` + userColumns
	return r.updateReturning(ctx, query, requested, username)
}

// Rename changes the primary key of a user. Token owners follow through the
// ON UPDATE CASCADE foreign key.
func (r *UserRepository) Rename(ctx context.Context, username, newUsername string) (types.User, error) {
	const query = `
		UPDATE users
		SET username = $1
		WHERE username = $2
		RETURNING ` + userColumns
	return r.updateReturning(ctx, query, newUsername, username)
}

func (r *UserRepository) updateReturning(ctx context.Context, query string, args ...any) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// Delete removes the user and every token it owns in one transaction and
// returns the number of users removed.
func (r *UserRepository) Delete(ctx context.Context, username string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE owner = $1`, username); err != nil {
		return 0, fmt.Errorf("delete tokens: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return affected, nil
}
