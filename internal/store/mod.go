package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modcatalog/apiserver/types"
)

// ModRepository handles persistence for mods and their versions.
type ModRepository struct {
	db *sql.DB
}

func NewModRepository(db *sql.DB) *ModRepository {
	return &ModRepository{db: db}
}

func (r *ModRepository) List(ctx context.Context) ([]types.Mod, error) {
	const query = `
		SELECT id, name, url
		FROM mods
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mods := []types.Mod{}
	for rows.Next() {
		var mod types.Mod
		if err := rows.Scan(&mod.ID, &mod.Name, &mod.URL); err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, rows.Err()
}

func (r *ModRepository) Get(ctx context.Context, id string) (types.Mod, error) {
	const query = `
		SELECT id, name, url
		FROM mods
		WHERE id = $1`
	var mod types.Mod
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&mod.ID, &mod.Name, &mod.URL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Mod{}, ErrNotFound
		}
		return types.Mod{}, err
	}
	return mod, nil
}

func (r *ModRepository) Create(ctx context.Context, mod types.Mod) (types.Mod, error) {
	const query = `
		INSERT INTO mods (id, name, url)
		VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, mod.ID, mod.Name, mod.URL); err != nil {
		return types.Mod{}, mapWriteError(err)
	}
	return mod, nil
}

func (r *ModRepository) Update(ctx context.Context, mod types.Mod) (types.Mod, error) {
	const query = `
		UPDATE mods
		SET name = $1,
			url = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, mod.Name, mod.URL, mod.ID)
	if err != nil {
		return types.Mod{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Mod{}, err
	}
	if affected == 0 {
		return types.Mod{}, ErrNotFound
	}
	return mod, nil
}

// Delete removes a mod; its versions go with it through ON DELETE CASCADE.
func (r *ModRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM mods WHERE id = $1`, id)
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

const versionColumns = `id, mod, name, url, minecraft, recommended, changelog, loader, dependencies`

func (r *ModRepository) ListVersions(ctx context.Context, modID string) ([]types.Version, error) {
	const query = `
		SELECT ` + versionColumns + `
		FROM versions
		WHERE mod = $1
		ORDER BY minecraft, loader, id`
	rows, err := r.db.QueryContext(ctx, query, modID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []types.Version{}
	for rows.Next() {
		var (
			version types.Version
			deps    []byte
		)
		if err := rows.Scan(
			&version.ID,
			&version.Mod,
			&version.Name,
			&version.URL,
			&version.Minecraft,
			&version.Recommended,
			&version.Changelog,
			&version.Loader,
			&deps,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(deps, &version.Dependencies); err != nil {
			return nil, fmt.Errorf("decode dependencies of %s: %w", version.ID, err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (r *ModRepository) CreateVersion(ctx context.Context, version types.Version) (types.Version, error) {
	if version.Dependencies == nil {
		version.Dependencies = []types.Dependency{}
	}
	deps, err := json.Marshal(version.Dependencies)
	if err != nil {
		return types.Version{}, err
	}

	const query = `
		INSERT INTO versions (` + versionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		version.ID,
		version.Mod,
		version.Name,
		version.URL,
		version.Minecraft,
		version.Recommended,
		version.Changelog,
		version.Loader,
		deps,
	); err != nil {
		return types.Version{}, mapWriteError(err)
	}
	return version, nil
}

func (r *ModRepository) DeleteVersion(ctx context.Context, key types.VersionKey) error {
	const query = `
		DELETE FROM versions
		WHERE mod = $1 AND id = $2 AND minecraft = $3 AND loader = $4`
	result, err := r.db.ExecContext(ctx, query, key.Mod, key.ID, key.Minecraft, key.Loader)
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
