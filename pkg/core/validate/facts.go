package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

// CoerceFacts turns decoded structuring items into typed facts. Items without
// a section take the batch's section; items without a page take
// fallbackPage. Items that cannot be coerced are rejected with a reason.
func CoerceFacts(items []map[string]any, batch models.Section, fallbackPage int) ([]models.Fact, []FieldError) {
	var (
		facts    []models.Fact
		rejected []FieldError
	)
	for i, item := range items {
		f, err := coerce(item, batch, fallbackPage)
		if err != nil {
			err.Index = i
			rejected = append(rejected, *err)
			continue
		}
		facts = append(facts, f)
	}
	return facts, rejected
}

func coerce(item map[string]any, batch models.Section, fallbackPage int) (models.Fact, *FieldError) {
	section := batch
	if raw, ok := item["section"]; ok && raw != nil {
		s, ok := models.ParseSection(toString(raw))
		if !ok {
			return models.Fact{}, &FieldError{Field: "section", Reason: fmt.Sprintf("unknown section %q", toString(raw))}
		}
		section = s
	}
	if !section.Valid() {
		return models.Fact{}, &FieldError{Field: "section", Reason: "missing section"}
	}

	page := fallbackPage
	if raw, ok := item["page"]; ok && raw != nil {
		p, ok := toInt(raw)
		if !ok {
			return models.Fact{}, &FieldError{Field: "page", Reason: fmt.Sprintf("not an integer: %v", raw)}
		}
		page = p
	}
	if page < 1 {
		return models.Fact{}, &FieldError{Field: "page", Reason: fmt.Sprintf("must be >= 1, got %d", page)}
	}

	f := models.Fact{
		Section: section,
		Page:    page,
		Column:  firstString(item, "column", "key", "header", "label"),
		Value:   firstString(item, "value", "text", "content"),
		Unit:    firstString(item, "unit"),
		Context: firstString(item, "context", "row_label", "row"),
	}.Canonicalize()

	switch {
	case section == models.SectionNarrative && f.Value == "":
		return models.Fact{}, &FieldError{Field: "value", Reason: "narrative item has no text"}
	case f.Column == "":
		return models.Fact{}, &FieldError{Field: "column", Reason: "must not be empty"}
	}
	return f, nil
}

func firstString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k]; ok && v != nil {
			return toString(v)
		}
	}
	return ""
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) {
			return int(f), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i, true
		}
	}
	return 0, false
}
