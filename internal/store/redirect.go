package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/modcatalog/apiserver/types"
)

// RedirectRepository handles persistence for redirects.
type RedirectRepository struct {
	db *sql.DB
}

func NewRedirectRepository(db *sql.DB) *RedirectRepository {
	return &RedirectRepository{db: db}
}

func (r *RedirectRepository) List(ctx context.Context) ([]types.Redirect, error) {
	const query = `
		SELECT id, name, url, path
		FROM redirects
		ORDER BY path`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	redirects := []types.Redirect{}
	for rows.Next() {
		var redirect types.Redirect
		if err := rows.Scan(&redirect.ID, &redirect.Name, &redirect.URL, &redirect.Path); err != nil {
			return nil, err
		}
		redirects = append(redirects, redirect)
	}
	return redirects, rows.Err()
}

func (r *RedirectRepository) Get(ctx context.Context, id string) (types.Redirect, error) {
	const query = `
		SELECT id, name, url, path
		FROM redirects
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *RedirectRepository) GetByPath(ctx context.Context, path string) (types.Redirect, error) {
	const query = `
		SELECT id, name, url, path
		FROM redirects
		WHERE path = $1`
	return r.getOne(ctx, query, path)
}

func (r *RedirectRepository) getOne(ctx context.Context, query string, arg string) (types.Redirect, error) {
	var redirect types.Redirect
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&redirect.ID, &redirect.Name, &redirect.URL, &redirect.Path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Redirect{}, ErrNotFound
		}
		return types.Redirect{}, err
	}
	return redirect, nil
}

func (r *RedirectRepository) Create(ctx context.Context, redirect types.Redirect) (types.Redirect, error) {
	const query = `
		INSERT INTO redirects (id, name, url, path)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, redirect.ID, redirect.Name, redirect.URL, redirect.Path); err != nil {
		return types.Redirect{}, mapWriteError(err)
	}
	return redirect, nil
}

func (r *RedirectRepository) Update(ctx context.Context, redirect types.Redirect) (types.Redirect, error) {
	const query = `
		UPDATE redirects
		SET name = $1,
			url = $2,
			path = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, redirect.Name, redirect.URL, redirect.Path, redirect.ID)
	if err != nil {
		return types.Redirect{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Redirect{}, err
	}
	if affected == 0 {
		return types.Redirect{}, ErrNotFound
	}
	return redirect, nil
}

func (r *RedirectRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM redirects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
