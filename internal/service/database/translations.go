package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/domain"
	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

// TranslationStore holds every persistence operation the pipeline performs.
// All writes are idempotent upserts: conflicting writes overwrite by unique
// key, so repeating a job leaves the store in the same final state.
type TranslationStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTranslationStore(ps *PostgresService, logger *zap.Logger) *TranslationStore {
	return &TranslationStore{db: ps.GetDB(), logger: logger}
}

func (s *TranslationStore) CountSourceEntries(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_entries`).Scan(&count)
	if err != nil {
		return 0, errors.NewStoreError("failed to count source entries", "count_source_entries", err)
	}
	return count, nil
}

// ListSourceEntries pages the source-language work set in stable key order,
// which is what makes offset-based resumption deterministic.
func (s *TranslationStore) ListSourceEntries(ctx context.Context, offset, limit int) ([]domain.SourceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT translation_key, source_text, COALESCE(category, '')
		FROM source_entries
		ORDER BY translation_key
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, errors.NewStoreError("failed to list source entries", "list_source_entries", err)
	}
	defer rows.Close()

	var entries []domain.SourceEntry
	for rows.Next() {
		var e domain.SourceEntry
		if err := rows.Scan(&e.TranslationKey, &e.SourceText, &e.Category); err != nil {
			return nil, errors.NewStoreError("failed to scan source entry", "list_source_entries", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("failed to iterate source entries", "list_source_entries", err)
	}
	return entries, nil
}

func (s *TranslationStore) UpsertSourceEntries(ctx context.Context, entries []domain.SourceEntry) error {
	if len(entries) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(entries))
	args := make([]any, 0, len(entries)*3)
	for i, e := range entries {
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, NULLIF($%d, ''))", i*3+1, i*3+2, i*3+3))
		args = append(args, e.TranslationKey, e.SourceText, e.Category)
	}

	query := fmt.Sprintf(`
		INSERT INTO source_entries (translation_key, source_text, category)
		VALUES %s
		ON CONFLICT (translation_key) DO UPDATE SET
			source_text = EXCLUDED.source_text,
			category    = EXCLUDED.category`,
		strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.NewStoreError("failed to upsert source entries", "upsert_source_entries", err)
	}
	return nil
}

// UpsertTranslations persists one batch as a single bulk statement keyed on
// (translation_key, language_code). The key columns never change on
// conflict; text, category, and last_updated are overwritten.
func (s *TranslationStore) UpsertTranslations(ctx context.Context, records []domain.TranslationRecord) error {
	if len(records) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*5)
	for i, r := range records {
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, NULLIF($%d, ''), $%d)",
			i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		args = append(args, r.TranslationKey, r.LanguageCode, r.TranslatedText, r.Category, r.LastUpdated)
	}

	query := fmt.Sprintf(`
		INSERT INTO translations (translation_key, language_code, translated_text, category, last_updated)
		VALUES %s
		ON CONFLICT (translation_key, language_code) DO UPDATE SET
			translated_text = EXCLUDED.translated_text,
			category        = EXCLUDED.category,
			last_updated    = EXCLUDED.last_updated`,
		strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.NewStoreError("failed to upsert translations", "upsert_translations", err)
	}

	s.logger.Debug("Translations upserted",
		zap.Int("records", len(records)),
		zap.String("language", records[0].LanguageCode),
	)
	return nil
}

func (s *TranslationStore) GetLanguage(ctx context.Context, code string) (domain.Language, error) {
	var lang domain.Language
	err := s.db.QueryRowContext(ctx, `
		SELECT code, name, is_active, COALESCE(percent_translated, 0)
		FROM languages WHERE code = $1`, code).
		Scan(&lang.Code, &lang.Name, &lang.IsActive, &lang.PercentTranslated)
	if err == sql.ErrNoRows {
		return domain.Language{}, errors.NewStoreError(
			fmt.Sprintf("language %q is not registered", code), "get_language", err)
	}
	if err != nil {
		return domain.Language{}, errors.NewStoreError("failed to load language", "get_language", err)
	}
	return lang, nil
}

// ListActiveTargets returns active languages other than the source language,
// in code order.
func (s *TranslationStore) ListActiveTargets(ctx context.Context, sourceLanguage string) ([]domain.Language, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, is_active, COALESCE(percent_translated, 0)
		FROM languages
		WHERE is_active AND code <> $1
		ORDER BY code`, sourceLanguage)
	if err != nil {
		return nil, errors.NewStoreError("failed to list active languages", "list_active_targets", err)
	}
	defer rows.Close()

	var langs []domain.Language
	for rows.Next() {
		var lang domain.Language
		if err := rows.Scan(&lang.Code, &lang.Name, &lang.IsActive, &lang.PercentTranslated); err != nil {
			return nil, errors.NewStoreError("failed to scan language", "list_active_targets", err)
		}
		langs = append(langs, lang)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("failed to iterate languages", "list_active_targets", err)
	}
	return langs, nil
}

func (s *TranslationStore) UpsertLanguage(ctx context.Context, lang domain.Language) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO languages (code, name, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET
			name      = EXCLUDED.name,
			is_active = EXCLUDED.is_active`,
		lang.Code, lang.Name, lang.IsActive)
	if err != nil {
		return errors.NewStoreError("failed to upsert language", "upsert_language", err)
	}
	return nil
}

// RecomputeLanguageStats refreshes percent_translated for the given language
// codes, fanned out over a bounded worker pool. The statistic is derived
// state; a failure here is logged by the caller, never escalated.
func (s *TranslationStore) RecomputeLanguageStats(ctx context.Context, codes []string) error {
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(4)
	for _, code := range codes {
		code := code
		p.Go(func(ctx context.Context) error {
			_, err := s.db.ExecContext(ctx, `
				UPDATE languages SET percent_translated = (
					SELECT COUNT(*) * 100.0 / NULLIF((SELECT COUNT(*) FROM source_entries), 0)
					FROM translations WHERE language_code = $1
				)
				WHERE code = $1`, code)
			if err != nil {
				return errors.NewStoreError(
					fmt.Sprintf("failed to recompute stats for %s", code), "recompute_stats", err)
			}
			return nil
		})
	}
	return p.Wait()
}
