package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/domain"
	"github.com/SamoM225/the-bible-translations/internal/service/ai"
)

// RecordStore is the persistence collaborator: one idempotent bulk upsert
// per batch, keyed on (translation_key, language_code).
type RecordStore interface {
	UpsertTranslations(ctx context.Context, records []domain.TranslationRecord) error
}

// Reconciler matches engine output keys back to the batch's expected keys,
// persists the survivors, and classifies each pair for review.
type Reconciler struct {
	store      RecordStore
	classifier *Classifier
	now        func() time.Time
	logger     *zap.Logger
}

func NewReconciler(store RecordStore, classifier *Classifier, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		classifier: classifier,
		now:        time.Now,
		logger:     logger,
	}
}

// WithNow replaces the clock. Test hook.
func (rc *Reconciler) WithNow(now func() time.Time) *Reconciler {
	rc.now = now
	return rc
}

// Reconcile intersects output keys with the batch's key set and persists the
// survivors as a single bulk upsert. Keys the batch never sent are dropped
// silently, which is what keeps hallucinated keys out of the store. Review
// items are returned even when persistence fails, since classification
// already happened; the caller records the error as a unit warning.
func (rc *Reconciler) Reconcile(ctx context.Context, batch domain.Batch, output ai.Output, languageCode string, mode Mode) ([]domain.ReviewItem, error) {
	records := make([]domain.TranslationRecord, 0, len(output.Translations))
	var reviews []domain.ReviewItem
	now := rc.now()

	for rawKey, translated := range output.Translations {
		key, meta, ok := batch.Resolve(rawKey)
		if !ok {
			rc.logger.Debug("Discarding untracked output key", zap.String("key", rawKey))
			continue
		}

		records = append(records, domain.TranslationRecord{
			TranslationKey: key,
			LanguageCode:   languageCode,
			TranslatedText: translated,
			Category:       meta.Category,
			LastUpdated:    now,
		})

		note := output.Notes[rawKey]
		if note == "" {
			note = output.Notes[key]
		}
		if item, flagged := rc.classifier.Classify(languageCode, key, meta.SourceText, translated, note, mode); flagged {
			reviews = append(reviews, item)
		}
	}

	if len(records) == 0 {
		return reviews, nil
	}

	if err := rc.store.UpsertTranslations(ctx, records); err != nil {
		return reviews, err
	}

	rc.logger.Debug("Batch reconciled",
		zap.String("language", languageCode),
		zap.Int("expected", batch.Len()),
		zap.Int("persisted", len(records)),
		zap.Int("flagged", len(reviews)),
	)
	return reviews, nil
}
