package domain

import "time"

// SourceEntry is a text unit in the source language awaiting translation.
// Its translation key is unique within the source language.
type SourceEntry struct {
	TranslationKey string `json:"translation_key"`
	SourceText     string `json:"source_text"`
	Category       string `json:"category,omitempty"`
}

// TranslationRecord is uniquely identified by (TranslationKey, LanguageCode).
// The pipeline only ever upserts these; last-writer-wins is the concurrency
// model.
type TranslationRecord struct {
	TranslationKey string    `json:"translation_key"`
	LanguageCode   string    `json:"language_code"`
	TranslatedText string    `json:"translated_text"`
	Category       string    `json:"category,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Language describes a target language. PercentTranslated is a derived,
// store-maintained statistic; the pipeline never computes it inline.
type Language struct {
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	IsActive          bool    `json:"is_active"`
	PercentTranslated float64 `json:"percent_translated"`
}
