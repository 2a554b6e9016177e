package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/modcatalog/apiserver/types"
)

const maxRedirectURLLength = 512

// RedirectRepository defines persistence operations for redirects.
type RedirectRepository interface {
	List(ctx context.Context) ([]types.Redirect, error)
	Get(ctx context.Context, id string) (types.Redirect, error)
	GetByPath(ctx context.Context, path string) (types.Redirect, error)
	Create(ctx context.Context, redirect types.Redirect) (types.Redirect, error)
	Update(ctx context.Context, redirect types.Redirect) (types.Redirect, error)
	Delete(ctx context.Context, id string) error
}

// RedirectUpdate holds the optional fields of a redirect update. At least one
// must be set.
type RedirectUpdate struct {
	Name *string
	Path *string
	URL  *string
}

type RedirectService struct {
	repo RedirectRepository
}

func NewRedirectService(repo RedirectRepository) *RedirectService {
	return &RedirectService{repo: repo}
}

func (s *RedirectService) List(ctx context.Context) ([]types.Redirect, error) {
	return s.repo.List(ctx)
}

func (s *RedirectService) Get(ctx context.Context, id string) (types.Redirect, error) {
	return s.repo.Get(ctx, id)
}

// Resolve finds the redirect registered for path.
func (s *RedirectService) Resolve(ctx context.Context, path string) (types.Redirect, error) {
	return s.repo.GetByPath(ctx, NormalizeRedirectPath(path))
}

func (s *RedirectService) Create(ctx context.Context, redirect types.Redirect) (types.Redirect, error) {
	redirect.ID = strings.TrimSpace(redirect.ID)
	redirect.Path = NormalizeRedirectPath(redirect.Path)
	if err := requireField("id", redirect.ID, maxFieldLength); err != nil {
		return types.Redirect{}, err
	}
	if err := requireField("name", redirect.Name, maxFieldLength); err != nil {
		return types.Redirect{}, err
	}
	if err := requireField("path", redirect.Path, maxFieldLength); err != nil {
		return types.Redirect{}, err
	}
	if err := requireField("url", redirect.URL, maxRedirectURLLength); err != nil {
		return types.Redirect{}, err
	}
	return s.repo.Create(ctx, redirect)
}

func (s *RedirectService) Update(ctx context.Context, id string, update RedirectUpdate) (types.Redirect, error) {
	if isBlank(update.Name) && isBlank(update.Path) && isBlank(update.URL) {
		return types.Redirect{}, fmt.Errorf("%w: one of name, path, url is required", ErrInvalidInput)
	}

	redirect, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Redirect{}, err
	}
	if !isBlank(update.Name) {
		if err := limitField("name", *update.Name, maxFieldLength); err != nil {
			return types.Redirect{}, err
		}
		redirect.Name = *update.Name
	}
	if !isBlank(update.Path) {
		path := NormalizeRedirectPath(*update.Path)
		if err := requireField("path", path, maxFieldLength); err != nil {
			return types.Redirect{}, err
		}
		redirect.Path = path
	}
	if !isBlank(update.URL) {
		if err := limitField("url", *update.URL, maxRedirectURLLength); err != nil {
			return types.Redirect{}, err
		}
		redirect.URL = *update.URL
	}
	return s.repo.Update(ctx, redirect)
}

func (s *RedirectService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// NormalizeRedirectPath strips one leading and one trailing slash.
func NormalizeRedirectPath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "/")
	return strings.TrimSuffix(path, "/")
}

func isBlank(value *string) bool {
	return value == nil || *value == ""
}
