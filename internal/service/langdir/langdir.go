// Package langdir resolves language metadata for the pipeline, caching
// store lookups in Redis. Language rows change rarely but are consulted at
// the start of every job.
package langdir

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/domain"
	"github.com/SamoM225/the-bible-translations/internal/service/cache"
)

const (
	languageKeyPrefix = "lang:meta:"
	targetsKey        = "lang:active_targets"
	cacheTTL          = 5 * time.Minute
)

type Store interface {
	GetLanguage(ctx context.Context, code string) (domain.Language, error)
	ListActiveTargets(ctx context.Context, sourceLanguage string) ([]domain.Language, error)
	UpsertLanguage(ctx context.Context, lang domain.Language) error
}

type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Directory struct {
	store          Store
	cache          Cache
	sourceLanguage string
	logger         *zap.Logger
}

func New(store Store, cacheSvc Cache, sourceLanguage string, logger *zap.Logger) *Directory {
	return &Directory{
		store:          store,
		cache:          cacheSvc,
		sourceLanguage: sourceLanguage,
		logger:         logger,
	}
}

var _ Cache = (*cache.CacheService)(nil)

// Language resolves one language's metadata, cache first. Cache failures
// fall through to the store.
func (d *Directory) Language(ctx context.Context, code string) (domain.Language, error) {
	key := languageKeyPrefix + code

	if d.cache != nil {
		var cached domain.Language
		if ok, err := d.cache.Get(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}

	lang, err := d.store.GetLanguage(ctx, code)
	if err != nil {
		return domain.Language{}, err
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, key, lang, cacheTTL); err != nil {
			d.logger.Warn("Failed to cache language metadata", zap.String("code", code), zap.Error(err))
		}
	}
	return lang, nil
}

// ActiveTargets lists active non-source languages.
func (d *Directory) ActiveTargets(ctx context.Context) ([]domain.Language, error) {
	if d.cache != nil {
		var cached []domain.Language
		if ok, err := d.cache.Get(ctx, targetsKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	langs, err := d.store.ListActiveTargets(ctx, d.sourceLanguage)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, targetsKey, langs, cacheTTL); err != nil {
			d.logger.Warn("Failed to cache active targets", zap.Error(err))
		}
	}
	return langs, nil
}

// Register upserts a language row (conflict key: code) and invalidates the
// cached metadata so the next job sees it.
func (d *Directory) Register(ctx context.Context, lang domain.Language) error {
	if err := d.store.UpsertLanguage(ctx, lang); err != nil {
		return err
	}
	if d.cache != nil {
		if err := d.cache.Delete(ctx, languageKeyPrefix+lang.Code, targetsKey); err != nil {
			d.logger.Warn("Failed to invalidate language cache", zap.String("code", lang.Code), zap.Error(err))
		}
	}
	return nil
}
