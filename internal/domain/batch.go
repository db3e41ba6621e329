package domain

import "strings"

// EntryMeta is the per-key metadata a batch keeps for reconciliation.
type EntryMeta struct {
	SourceText string
	Category   string
}

// Batch is an ephemeral, ordered slice of source entries plus a lookup from
// key to metadata. Batches share no mutable state, so they are safe to
// process sequentially or in bounded parallel.
type Batch struct {
	Entries []SourceEntry

	byKey   map[string]EntryMeta
	byLower map[string]string
}

func NewBatch(entries []SourceEntry) Batch {
	b := Batch{
		Entries: entries,
		byKey:   make(map[string]EntryMeta, len(entries)),
		byLower: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		b.byKey[e.TranslationKey] = EntryMeta{SourceText: e.SourceText, Category: e.Category}
		b.byLower[strings.ToLower(e.TranslationKey)] = e.TranslationKey
	}
	return b
}

func (b Batch) Len() int {
	return len(b.Entries)
}

// Resolve matches an AI output key against the batch's key set. Matching is
// whitespace and case tolerant: the key is trimmed, then tried exactly, then
// lowercased. The canonical batch key is returned so persistence never uses
// a garbled variant.
func (b Batch) Resolve(key string) (string, EntryMeta, bool) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", EntryMeta{}, false
	}
	if meta, ok := b.byKey[trimmed]; ok {
		return trimmed, meta, true
	}
	if canonical, ok := b.byLower[strings.ToLower(trimmed)]; ok {
		return canonical, b.byKey[canonical], true
	}
	return "", EntryMeta{}, false
}

// KeyTexts returns the key → source text map sent to the translation engine.
func (b Batch) KeyTexts() map[string]string {
	m := make(map[string]string, len(b.Entries))
	for _, e := range b.Entries {
		m[e.TranslationKey] = e.SourceText
	}
	return m
}
