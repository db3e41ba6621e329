package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/SamoM225/the-bible-translations/internal/domain"
	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

// Row element names recognized in uploaded XML.
var xmlRowNames = map[string]bool{
	"translation": true,
	"item":        true,
	"row":         true,
}

type xmlRow struct {
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// field reads a row field from child elements first, then attributes.
func (r xmlRow) field(name string) string {
	for _, child := range r.Children {
		if strings.EqualFold(child.XMLName.Local, name) {
			return strings.TrimSpace(child.Value)
		}
	}
	for _, attr := range r.Attrs {
		if strings.EqualFold(attr.Name.Local, name) {
			return strings.TrimSpace(attr.Value)
		}
	}
	return ""
}

func (r xmlRow) fieldNames() []string {
	var names []string
	for _, child := range r.Children {
		names = append(names, strings.ToLower(child.XMLName.Local))
	}
	for _, attr := range r.Attrs {
		names = append(names, strings.ToLower(attr.Name.Local))
	}
	return names
}

// ParseXML reads translation/item/row elements anywhere in the document.
// Fields may be child elements or attributes.
func ParseXML(content string) ([]domain.SourceEntry, error) {
	decoder := xml.NewDecoder(strings.NewReader(content))
	var entries []domain.SourceEntry
	var lastFieldNames []string
	sawRow := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewFormatError(fmt.Sprintf("cannot parse XML file: %v", err), nil)
		}

		start, ok := token.(xml.StartElement)
		if !ok || !xmlRowNames[strings.ToLower(start.Name.Local)] {
			continue
		}

		var row xmlRow
		if err := decoder.DecodeElement(&row, &start); err != nil {
			return nil, errors.NewFormatError(fmt.Sprintf("cannot parse XML element: %v", err), nil)
		}
		sawRow = true
		lastFieldNames = row.fieldNames()

		key := row.field("translation_key")
		text := row.field("source_text")
		if text == "" {
			text = row.field("translated_text")
		}
		if key == "" || text == "" {
			continue
		}

		entries = append(entries, domain.SourceEntry{
			TranslationKey: key,
			SourceText:     text,
			Category:       row.field("category"),
		})
	}

	if sawRow && len(entries) == 0 {
		return nil, errors.NewFormatError(
			fmt.Sprintf("required fields translation_key and source_text/translated_text are missing (found: %s)",
				strings.Join(lastFieldNames, ", ")), lastFieldNames)
	}
	if !sawRow {
		return nil, errors.NewFormatError("no translation/item/row elements found", nil)
	}
	return entries, nil
}

// Parse dispatches on content shape: XML documents start with '<', anything
// else is treated as delimited text.
func Parse(content string) ([]domain.SourceEntry, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errors.NewFormatError("file is empty", nil)
	}
	if strings.HasPrefix(trimmed, "<") {
		return ParseXML(content)
	}
	return ParseDelimited(content)
}
