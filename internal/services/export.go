package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"

	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/storage"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
)

const exportPrefix = "exports/"

var exportNamePattern = regexp.MustCompile(`^catalog-[0-9]+\.json$`)

// ObjectStore is the subset of object storage used for catalog exports.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ExportService writes catalog snapshots to object storage. A nil store
// disables it and every call returns ErrUnavailable.
type ExportService struct {
	mods      ModRepository
	redirects RedirectRepository
	objects   ObjectStore
	clock     auth.Clock
	log       logging.Logger
}

func NewExportService(mods ModRepository, redirects RedirectRepository, objects ObjectStore, deps Deps) *ExportService {
	deps = deps.withDefaults()
	return &ExportService{
		mods:      mods,
		redirects: redirects,
		objects:   objects,
		clock:     deps.Clock,
		log:       deps.Logger.With("component", "exports"),
	}
}

// Enabled reports whether an object store is configured.
func (s *ExportService) Enabled() bool {
	return s.objects != nil
}

// Export snapshots mods with their versions and redirects, and stores the
// snapshot as exports/catalog-<unix>.json.
func (s *ExportService) Export(ctx context.Context) (types.ExportInfo, error) {
	if !s.Enabled() {
		return types.ExportInfo{}, ErrUnavailable
	}

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return types.ExportInfo{}, err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return types.ExportInfo{}, err
	}

	info := types.ExportInfo{
		Name:      fmt.Sprintf("catalog-%d.json", snapshot.GeneratedAt.Unix()),
		Size:      int64(len(data)),
		CreatedAt: snapshot.GeneratedAt,
	}
	if err := s.objects.Put(ctx, exportPrefix+info.Name, bytes.NewReader(data), info.Size, "application/json"); err != nil {
		return types.ExportInfo{}, fmt.Errorf("upload export: %w", err)
	}

	s.log.Info(ctx, "catalog exported", "name", info.Name, "mods", len(snapshot.Mods), "redirects", len(snapshot.Redirects))
	return info, nil
}

// List returns the stored exports, newest first.
func (s *ExportService) List(ctx context.Context) ([]types.ExportInfo, error) {
	if !s.Enabled() {
		return nil, ErrUnavailable
	}
	objects, err := s.objects.List(ctx, exportPrefix)
	if err != nil {
		return nil, err
	}

	exports := make([]types.ExportInfo, 0, len(objects))
	for _, object := range objects {
		name := path.Base(object.Key)
		if !exportNamePattern.MatchString(name) {
			continue
		}
		exports = append(exports, types.ExportInfo{Name: name, Size: object.Size, CreatedAt: object.LastModified})
	}
	sort.Slice(exports, func(i, j int) bool {
		return exports[i].CreatedAt.After(exports[j].CreatedAt)
	})
	return exports, nil
}

// Open returns a reader for the named export. The caller closes it.
func (s *ExportService) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	reader, err := s.objects.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, store.ErrNotFound
	}
	return reader, err
}

func (s *ExportService) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	err = s.objects.Delete(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return store.ErrNotFound
	}
	return err
}

func (s *ExportService) key(name string) (string, error) {
	if !s.Enabled() {
		return "", ErrUnavailable
	}
	if !exportNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: invalid export name %q", ErrInvalidInput, name)
	}
	return exportPrefix + name, nil
}

func (s *ExportService) snapshot(ctx context.Context) (types.CatalogExport, error) {
	mods, err := s.mods.List(ctx)
	if err != nil {
		return types.CatalogExport{}, err
	}
	redirects, err := s.redirects.List(ctx)
	if err != nil {
		return types.CatalogExport{}, err
	}

	snapshot := types.CatalogExport{
		GeneratedAt: s.clock.Now().UTC(),
		Mods:        make([]types.ModWithVersions, 0, len(mods)),
		Redirects:   redirects,
	}
	for _, mod := range mods {
		versions, err := s.mods.ListVersions(ctx, mod.ID)
		if err != nil {
			return types.CatalogExport{}, fmt.Errorf("list versions of %s: %w", mod.ID, err)
		}
		snapshot.Mods = append(snapshot.Mods, types.ModWithVersions{Mod: mod, Versions: versions})
	}
	return snapshot, nil
}
