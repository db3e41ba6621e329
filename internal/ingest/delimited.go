// Package ingest parses uploaded CSV/TSV/XML content into the canonical
// source-entry shape consumed by the pipeline. A malformed file surfaces a
// FormatError before anything is persisted.
package ingest

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/SamoM225/the-bible-translations/internal/domain"
	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

// Candidate delimiters in deterministic priority order: a tie on the
// detection score resolves to the earliest candidate.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

const detectionSampleLines = 5

// DetectDelimiter picks the candidate that maximizes the minimum per-line
// field count over the first 5 non-blank lines. A delimiter that splits
// every sampled line consistently wins over one that splits only some.
func DetectDelimiter(content string) rune {
	var sample []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sample = append(sample, line)
		if len(sample) == detectionSampleLines {
			break
		}
	}
	if len(sample) == 0 {
		return delimiterCandidates[0]
	}

	best := delimiterCandidates[0]
	bestScore := -1
	for _, candidate := range delimiterCandidates {
		score := -1
		for _, line := range sample {
			fields := strings.Count(line, string(candidate)) + 1
			if score == -1 || fields < score {
				score = fields
			}
		}
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best
}

// ParseDelimited parses CSV/TSV content with an auto-detected delimiter.
// Required columns: translation_key, and one of source_text /
// translated_text; category is optional. Extra columns are ignored.
func ParseDelimited(content string) ([]domain.SourceEntry, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = DetectDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.NewFormatError(fmt.Sprintf("cannot parse delimited file: %v", err), nil)
	}
	if len(rows) == 0 {
		return nil, errors.NewFormatError("file contains no rows", nil)
	}

	header := rows[0]
	columns := make(map[string]int, len(header))
	found := make([]string, 0, len(header))
	for i, name := range header {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if _, dup := columns[normalized]; !dup {
			columns[normalized] = i
		}
		found = append(found, normalized)
	}

	keyIdx, ok := columns["translation_key"]
	if !ok {
		return nil, errors.NewFormatError(
			fmt.Sprintf("required column translation_key is missing (found: %s)", strings.Join(found, ", ")), found)
	}
	textIdx, ok := columns["source_text"]
	if !ok {
		textIdx, ok = columns["translated_text"]
	}
	if !ok {
		return nil, errors.NewFormatError(
			fmt.Sprintf("required column source_text or translated_text is missing (found: %s)", strings.Join(found, ", ")), found)
	}
	categoryIdx, hasCategory := columns["category"]

	var entries []domain.SourceEntry
	for _, row := range rows[1:] {
		if keyIdx >= len(row) || textIdx >= len(row) {
			continue
		}
		key := strings.TrimSpace(row[keyIdx])
		if key == "" {
			continue
		}
		entry := domain.SourceEntry{
			TranslationKey: key,
			SourceText:     strings.TrimSpace(row[textIdx]),
		}
		if hasCategory && categoryIdx < len(row) {
			entry.Category = strings.TrimSpace(row[categoryIdx])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
