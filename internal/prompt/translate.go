// Package prompt builds the system and instruction prompts sent to the
// translation engine. The prompt text lives in embedded JSON templates so it
// can be edited without touching Go code.
package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"text/template"
)

type templateData struct {
	Prompt string `json:"prompt"`
}

//go:embed templates/system_prompt.json
var systemPromptJSON []byte

//go:embed templates/translate_prompt.json
var translatePromptJSON []byte

var (
	systemTemplate    *template.Template
	translateTemplate *template.Template
)

func init() {
	systemTemplate = mustParse("system", systemPromptJSON)
	translateTemplate = mustParse("translate", translatePromptJSON)
}

func mustParse(name string, raw []byte) *template.Template {
	var data templateData
	if err := json.Unmarshal(raw, &data); err != nil {
		panic(err)
	}
	tmpl, err := template.New(name).Parse(data.Prompt)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// SystemVars provides dynamic values for the system prompt.
type SystemVars struct {
	LanguageName string
}

// TranslateVars provides dynamic values for the per-batch instruction.
type TranslateVars struct {
	LanguageName string
	LanguageCode string
	KeyCount     int
	EntriesJSON  string
}

func BuildSystem(vars SystemVars) (string, error) {
	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func BuildTranslate(vars TranslateVars) (string, error) {
	var buf bytes.Buffer
	if err := translateTemplate.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarshalEntries renders the key → source text map as the indented JSON blob
// embedded in the instruction prompt. Map marshalling sorts keys, so the
// blob is deterministic for a given batch.
func MarshalEntries(entries map[string]string) (string, error) {
	blob, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(blob), nil
}
