package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/modcatalog/apiserver/types"
)

const (
	maxFieldLength     = 255
	maxChangelogLength = 511
)

// ModRepository defines persistence operations for mods and versions.
type ModRepository interface {
	List(ctx context.Context) ([]types.Mod, error)
	Get(ctx context.Context, id string) (types.Mod, error)
	Create(ctx context.Context, mod types.Mod) (types.Mod, error)
	Update(ctx context.Context, mod types.Mod) (types.Mod, error)
	Delete(ctx context.Context, id string) error
	ListVersions(ctx context.Context, modID string) ([]types.Version, error)
	CreateVersion(ctx context.Context, version types.Version) (types.Version, error)
	DeleteVersion(ctx context.Context, key types.VersionKey) error
}

// ModUpdate holds the optional fields of a mod update.
type ModUpdate struct {
	Name *string
	URL  *string
}

// ModService encapsulates catalog use-cases for mods and their versions.
type ModService struct {
	repo ModRepository
}

func NewModService(repo ModRepository) *ModService {
	return &ModService{repo: repo}
}

func (s *ModService) List(ctx context.Context) ([]types.Mod, error) {
	return s.repo.List(ctx)
}

func (s *ModService) Get(ctx context.Context, id string) (types.Mod, error) {
	return s.repo.Get(ctx, id)
}

func (s *ModService) Create(ctx context.Context, mod types.Mod) (types.Mod, error) {
	mod.ID = strings.TrimSpace(mod.ID)
	if err := requireField("id", mod.ID, maxFieldLength); err != nil {
		return types.Mod{}, err
	}
	if err := requireField("name", mod.Name, maxFieldLength); err != nil {
		return types.Mod{}, err
	}
	if err := limitField("url", mod.URL, maxFieldLength); err != nil {
		return types.Mod{}, err
	}
	return s.repo.Create(ctx, mod)
}

func (s *ModService) Update(ctx context.Context, id string, update ModUpdate) (types.Mod, error) {
	mod, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Mod{}, err
	}
	if update.Name != nil && *update.Name != "" {
		if err := limitField("name", *update.Name, maxFieldLength); err != nil {
			return types.Mod{}, err
		}
		mod.Name = *update.Name
	}
	if update.URL != nil && *update.URL != "" {
		if err := limitField("url", *update.URL, maxFieldLength); err != nil {
			return types.Mod{}, err
		}
		mod.URL = *update.URL
	}
	return s.repo.Update(ctx, mod)
}

// Delete removes the mod and all of its versions.
func (s *ModService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ListVersions returns the versions of an existing mod.
func (s *ModService) ListVersions(ctx context.Context, modID string) ([]types.Version, error) {
	if _, err := s.repo.Get(ctx, modID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, modID)
}

// CreateVersion normalizes the version id to its semver form and stores the
// version under modID.
func (s *ModService) CreateVersion(ctx context.Context, modID string, version types.Version) (types.Version, error) {
	id, err := cleanVersion(version.ID)
	if err != nil {
		return types.Version{}, fmt.Errorf("%w: invalid version id %q", ErrInvalidInput, version.ID)
	}
	version.ID = id
	version.Mod = modID

	if err := validateVersion(version); err != nil {
		return types.Version{}, err
	}
	if _, err := s.repo.Get(ctx, modID); err != nil {
		return types.Version{}, err
	}
	return s.repo.CreateVersion(ctx, version)
}

func (s *ModService) DeleteVersion(ctx context.Context, key types.VersionKey) error {
	if id, err := cleanVersion(key.ID); err == nil {
		key.ID = id
	}
	return s.repo.DeleteVersion(ctx, key)
}

// ForgeUpdate builds the Forge update document from the forge versions of a
// mod. For every minecraft version the highest version is promoted as
// latest and the highest recommended version as recommended.
func (s *ModService) ForgeUpdate(ctx context.Context, modID string) (types.ForgeUpdate, error) {
	mod, err := s.repo.Get(ctx, modID)
	if err != nil {
		return types.ForgeUpdate{}, err
	}
	versions, err := s.repo.ListVersions(ctx, modID)
	if err != nil {
		return types.ForgeUpdate{}, err
	}

	update := types.ForgeUpdate{
		Homepage:   mod.URL,
		Promos:     map[string]string{},
		Changelogs: map[string]map[string]string{},
	}
	for _, version := range versions {
		if version.Loader != types.LoaderForge {
			continue
		}

		changelogs, ok := update.Changelogs[version.Minecraft]
		if !ok {
			changelogs = map[string]string{}
			update.Changelogs[version.Minecraft] = changelogs
		}
		changelogs[version.ID] = version.Changelog

		promote(update.Promos, version.Minecraft+"-latest", version.ID)
		if version.Recommended {
			promote(update.Promos, version.Minecraft+"-recommended", version.ID)
		}
	}
	return update, nil
}

func promote(promos map[string]string, key, id string) {
	current, ok := promos[key]
	if !ok || versionGreater(id, current) {
		promos[key] = id
	}
}

func versionGreater(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a > b
	}
	return va.GreaterThan(vb)
}

func cleanVersion(raw string) (string, error) {
	v, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func validateVersion(version types.Version) error {
	if err := requireField("name", version.Name, maxFieldLength); err != nil {
		return err
	}
	if err := limitField("url", version.URL, maxFieldLength); err != nil {
		return err
	}
	if err := requireField("minecraft", version.Minecraft, maxFieldLength); err != nil {
		return err
	}
	if err := limitField("changelog", version.Changelog, maxChangelogLength); err != nil {
		return err
	}
	if !version.Loader.Valid() {
		return fmt.Errorf("%w: unknown loader %q", ErrInvalidInput, version.Loader)
	}
	for _, dep := range version.Dependencies {
		if err := requireField("dependency id", dep.ID, maxFieldLength); err != nil {
			return err
		}
		if !dep.Side.Valid() {
			return fmt.Errorf("%w: unknown dependency side %q", ErrInvalidInput, dep.Side)
		}
		if _, err := semver.NewVersion(dep.Version); err != nil {
			return fmt.Errorf("%w: invalid dependency version %q", ErrInvalidInput, dep.Version)
		}
	}
	return nil
}

func requireField(name, value string, limit int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	return limitField(name, value, limit)
}

func limitField(name, value string, limit int) error {
	if len(value) > limit {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, name, limit)
	}
	return nil
}
