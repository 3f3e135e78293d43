package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-formsync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const formCacheKeyPrefix = "formsync::form::v1"

// CachedFormStore serves form reads from a cache. Forms are immutable once
// created, so only the per-base listing needs invalidation.
type CachedFormStore struct {
	base  core.FormStore
	cache repositorycache.CacheService
}

func NewCachedFormStore(base core.FormStore, cacheService repositorycache.CacheService) (*CachedFormStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base form store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: form cache service is required")
	}
	return &CachedFormStore{base: base, cache: cacheService}, nil
}

// FormCacheKey returns formsync::form::v1::<kind>::<id> with the id URL-path
// escaped.
func FormCacheKey(kind string, id string) string {
	return strings.Join([]string{formCacheKeyPrefix, kind, url.PathEscape(strings.TrimSpace(id))}, "::")
}

func (s *CachedFormStore) Create(ctx context.Context, form core.Form) (core.Form, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Form{}, fmt.Errorf("sqlstore: cached form store is not configured")
	}
	created, err := s.base.Create(ctx, form)
	if err != nil {
		return core.Form{}, err
	}
	if err := s.cache.Delete(ctx, FormCacheKey("base", created.BaseID)); err != nil {
		return core.Form{}, err
	}
	return created, nil
}

func (s *CachedFormStore) Get(ctx context.Context, formID string) (core.Form, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Form{}, fmt.Errorf("sqlstore: cached form store is not configured")
	}
	form, err := repositorycache.GetOrFetch(ctx, s.cache, FormCacheKey("id", formID), func(ctx context.Context) (core.Form, error) {
		return s.base.Get(ctx, formID)
	})
	if err != nil {
		return core.Form{}, err
	}
	return cloneForm(form), nil
}

func (s *CachedFormStore) ListByOwner(ctx context.Context, ownerUserID string) ([]core.Form, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached form store is not configured")
	}
	return s.base.ListByOwner(ctx, ownerUserID)
}

func (s *CachedFormStore) ListByBase(ctx context.Context, baseID string) ([]core.Form, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached form store is not configured")
	}
	forms, err := repositorycache.GetOrFetch(ctx, s.cache, FormCacheKey("base", baseID), func(ctx context.Context) ([]core.Form, error) {
		return s.base.ListByBase(ctx, baseID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.Form, 0, len(forms))
	for _, form := range forms {
		out = append(out, cloneForm(form))
	}
	return out, nil
}

func cloneForm(form core.Form) core.Form {
	cloned := form
	cloned.Questions = append([]core.Question(nil), form.Questions...)
	return cloned
}

var _ core.FormStore = (*CachedFormStore)(nil)
