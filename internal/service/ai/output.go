package ai

import (
	"encoding/json"
	"sort"
	"strings"
)

// Output is the reconciled shape of an engine response. It is untrusted:
// keys may not match the request's keys and must always be intersected with
// the originating batch before persistence.
type Output struct {
	Translations map[string]string
	Notes        map[string]string
}

func (o Output) Empty() bool {
	return len(o.Translations) == 0 && len(o.Notes) == 0
}

// rawOutput tolerates the two note shapes models actually produce: a plain
// string, or an object of string fields.
type rawOutput struct {
	Translations map[string]string          `json:"translations"`
	Notes        map[string]json.RawMessage `json:"notes"`
}

// DecodeOutput parses engine text into an Output. Markdown code fences are
// stripped first. A payload that is not valid JSON of the expected shape
// yields an empty Output, never an error: malformed output is
// processed-with-zero-matches downstream, not a retry trigger.
func DecodeOutput(text string) Output {
	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return Output{}
	}

	var raw rawOutput
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return Output{}
	}

	out := Output{
		Translations: raw.Translations,
		Notes:        make(map[string]string, len(raw.Notes)),
	}
	if out.Translations == nil {
		out.Translations = map[string]string{}
	}
	for key, value := range raw.Notes {
		if note := flattenNote(value); note != "" {
			out.Notes[key] = note
		}
	}
	return out
}

func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "```json"))
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "```"))
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "```"))
	}
	return cleaned
}

func flattenNote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err == nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if v := strings.TrimSpace(fields[k]); v != "" {
				parts = append(parts, k+": "+v)
			}
		}
		return strings.Join(parts, "; ")
	}

	return ""
}
