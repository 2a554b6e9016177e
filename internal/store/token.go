package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/modcatalog/apiserver/types"
)

const tokenColumns = `id, owner, permissions, reason, expiry`

// TokenRepository handles persistence for bearer tokens.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func scanToken(row rowScanner) (types.Token, error) {
	var (
		token types.Token
		perms []string
	)
	if err := row.Scan(&token.ID, &token.Owner, pq.Array(&perms), &token.Reason, &token.Expiry); err != nil {
		return types.Token{}, err
	}
	token.Permissions = types.ParsePermissions(perms)
	return token, nil
}

func (r *TokenRepository) Get(ctx context.Context, id string) (types.Token, error) {
	const query = `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE id = $1`
	token, err := scanToken(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Token{}, ErrNotFound
		}
		return types.Token{}, err
	}
	return token, nil
}

func (r *TokenRepository) ListByOwner(ctx context.Context, owner string) ([]types.Token, error) {
	const query = `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE owner = $1
		ORDER BY expiry`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := []types.Token{}
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// Create stores a new token. Empty reasons and zero expiries are replaced by
// the column defaults.
func (r *TokenRepository) Create(ctx context.Context, token types.Token) (types.Token, error) {
	if token.Reason == "" {
		token.Reason = types.DefaultTokenReason
	}
	if token.Expiry == 0 {
		token.Expiry = types.NoExpiry
	}

	const query = `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + tokenColumns
	created, err := scanToken(r.db.QueryRowContext(
		ctx,
		query,
		token.ID,
		token.Owner,
		pq.Array(types.PermissionStrings(token.Permissions)),
		token.Reason,
		token.Expiry,
	))
	if err != nil {
		return types.Token{}, mapWriteError(err)
	}
	return created, nil
}

// Update rewrites the mutable fields of a token and returns the stored row.
func (r *TokenRepository) Update(ctx context.Context, token types.Token) (types.Token, error) {
	const query = `
		UPDATE tokens
		SET permissions = $1,
			reason = $2,
			expiry = $3
		WHERE id = $4
		RETURNING ` + tokenColumns
	updated, err := scanToken(r.db.QueryRowContext(
		ctx,
		query,
		pq.Array(types.PermissionStrings(token.Permissions)),
		token.Reason,
		token.Expiry,
		token.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Token{}, ErrNotFound
		}
		return types.Token{}, err
	}
	return updated, nil
}

// Delete removes a token and reports how many rows were removed. Deleting a
// missing token is not an error.
func (r *TokenRepository) Delete(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpired removes every token whose expiry is at or before now.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE expiry <= $1`, now.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
