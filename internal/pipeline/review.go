package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/SamoM225/the-bible-translations/internal/domain"
)

// Mode selects the classification names and the sensitive-term rule. The
// import pipeline runs the stricter variant.
type Mode int

const (
	ModeNewLanguage Mode = iota
	ModeImport
)

// Classifier decides whether a (source, translated, note) pair needs human
// review. It is a lexical heuristic over free text: deterministic, not
// accurate. All three word lists are configuration.
type Classifier struct {
	sensitiveTerms []string
	justifications []string
	warnings       []string
}

func NewClassifier(sensitiveTerms, justificationPhrases, warningPhrases []string) *Classifier {
	return &Classifier{
		sensitiveTerms: lowerAll(sensitiveTerms),
		justifications: lowerAll(justificationPhrases),
		warnings:       lowerAll(warningPhrases),
	}
}

// Classify applies the rules in order:
//  1. identical-to-source, unless the source is purely numeric or a single
//     character;
//  2. in import mode, an identical source containing a sensitive term is the
//     strongest category and always reported;
//  3. a model note is suppressed as a false alarm only when it contains a
//     justification phrase and no warning phrase.
func (c *Classifier) Classify(languageCode, key, source, translated, note string, mode Mode) (domain.ReviewItem, bool) {
	item := domain.ReviewItem{
		LanguageCode:   languageCode,
		Key:            key,
		SourceText:     source,
		TranslatedText: translated,
	}

	if translated == source && !isNumeric(source) && utf8.RuneCountInString(source) > 1 {
		if mode == ModeImport {
			if term, ok := c.containsSensitiveTerm(source); ok {
				item.Classification = domain.ClassificationCriticalTerm
				item.Reason = fmt.Sprintf("source contains the ambiguous term %q and was left untranslated", term)
				return item, true
			}
		}
		item.Classification = domain.ClassificationUntranslated
		item.Reason = "translation is identical to the source text"
		return item, true
	}

	if note != "" && !c.isFalseAlarm(note) {
		if mode == ModeImport {
			item.Classification = domain.ClassificationWarning
		} else {
			item.Classification = domain.ClassificationAdaptation
		}
		item.Reason = note
		return item, true
	}

	return domain.ReviewItem{}, false
}

func (c *Classifier) containsSensitiveTerm(source string) (string, bool) {
	lower := strings.ToLower(source)
	for _, term := range c.sensitiveTerms {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

// isFalseAlarm: a warning phrase always wins over any justification phrase.
func (c *Classifier) isFalseAlarm(note string) bool {
	lower := strings.ToLower(note)
	for _, phrase := range c.warnings {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	for _, phrase := range c.justifications {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	_, err := strconv.ParseFloat(trimmed, 64)
	return err == nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(strings.ToLower(v)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
