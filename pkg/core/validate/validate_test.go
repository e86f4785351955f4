package validate

import (
	"reflect"
	"testing"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

func hasError(res Result, index int, field string) bool {
	for _, e := range res.Errors {
		if e.Index == index && e.Field == field {
			return true
		}
	}
	return false
}

func TestCheck(t *testing.T) {
	records := []models.Record{
		{Page: 1, Section: models.SectionTable, RowID: 0, Column: "Q4 2024", Value: "$115.5 million"},
		{Page: 0, Section: models.SectionTable, RowID: 1, Column: "Q4 2024"},
		{Page: 2, Section: "Chart", RowID: 0, Column: ""},
	}
	snapshot := append([]models.Record(nil), records...)

	res := Check(records)
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	want := []struct {
		index int
		field string
	}{{1, "page"}, {2, "section"}, {2, "column"}}
	if len(res.Errors) != len(want) {
		t.Fatalf("expected %d errors, got %v", len(want), res.Errors)
	}
	for _, w := range want {
		if !hasError(res, w.index, w.field) {
			t.Errorf("missing error for [%d].%s in %v", w.index, w.field, res.Errors)
		}
	}
	if !reflect.DeepEqual(records, snapshot) {
		t.Error("Check mutated its input")
	}
}

func TestValidator_Validate(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok := v.Validate([]models.Record{
		{Page: 1, Section: models.SectionNarrative, RowID: 0, Column: "text", Value: "Revenue grew 33%"},
	})
	if !ok.Valid {
		t.Errorf("valid records rejected: %v", ok.Errors)
	}

	bad := v.Validate([]models.Record{{Page: 0, Section: models.SectionTable, Column: " "}})
	if bad.Valid || !hasError(bad, 0, "page") || !hasError(bad, 0, "column") {
		t.Errorf("expected page and column errors, got %v", bad.Errors)
	}
	seen := map[string]int{}
	for _, e := range bad.Errors {
		seen[e.Field]++
	}
	if seen["page"] != 1 {
		t.Errorf("page reported %d times, want once", seen["page"])
	}

	if res := v.Validate(nil); !res.Valid {
		t.Errorf("empty record set should be valid: %v", res.Errors)
	}
}

func TestValidator_ValidateJSON(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name      string
		payload   string
		wantValid bool
		wantIndex int
		wantField string
	}{
		{
			name:      "canonical",
			payload:   `[{"page":1,"section":"Table","row_id":0,"column":"Q4 2024","value":"$115.5 million","unit":"million USD","context":"Revenue"}]`,
			wantValid: true,
		},
		{
			name:      "missing column",
			payload:   `[{"page":1,"section":"Table","row_id":0,"value":"1","unit":"","context":""}]`,
			wantIndex: 0, wantField: "column",
		},
		{
			name:      "extra key",
			payload:   `[{"page":1,"section":"Table","row_id":0,"column":"A","value":"1","unit":"","context":"","numeric_value":1}]`,
			wantIndex: 0, wantField: "numeric_value",
		},
		{
			name:      "string page",
			payload:   `[{"page":1,"section":"Table","row_id":0,"column":"A","value":"1","unit":"","context":""},{"page":"2","section":"KeyValue","row_id":0,"column":"B","value":"","unit":"","context":""}]`,
			wantIndex: 1, wantField: "page",
		},
		{
			name:      "bad section",
			payload:   `[{"page":1,"section":"Chart","row_id":0,"column":"A","value":"1","unit":"","context":""}]`,
			wantIndex: 0, wantField: "section",
		},
		{
			name:      "not JSON",
			payload:   `[{"page":`,
			wantIndex: -1, wantField: "$",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateJSON([]byte(tt.payload))
			if res.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, errors %v", res.Valid, res.Errors)
			}
			if !tt.wantValid && !hasError(res, tt.wantIndex, tt.wantField) {
				t.Errorf("expected error at [%d].%s, got %v", tt.wantIndex, tt.wantField, res.Errors)
			}
		})
	}
}

func TestCoerceFacts(t *testing.T) {
	items := []map[string]any{
		{"page": 1.0, "column": "Q4 2024", "value": "$115.5 million", "unit": "million USD", "context": "Revenue"},
		{"page": "2", "section": "key_value", "key": "Ticker", "value": "LIF", "context": "dropped"},
		{"section": "text", "text": "Revenue grew 33% to $115.5 million"},
		{"page": 1, "value": 42.5},
		{"page": "two", "column": "A", "value": "1"},
		{"section": "chart", "column": "A"},
		{"section": "narrative", "page": 3},
	}
	facts, rejected := CoerceFacts(items, models.SectionTable, 4)

	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d: %+v (rejected %v)", len(facts), facts, rejected)
	}
	if facts[0].Section != models.SectionTable || facts[0].Page != 1 || facts[0].Context != "Revenue" {
		t.Errorf("table fact wrong: %+v", facts[0])
	}
	if facts[1].Section != models.SectionKeyValue || facts[1].Page != 2 || facts[1].Column != "Ticker" || facts[1].Context != "" {
		t.Errorf("key-value fact wrong: %+v", facts[1])
	}
	if facts[2].Section != models.SectionNarrative || facts[2].Page != 4 || facts[2].Column != "text" {
		t.Errorf("narrative fact wrong: %+v", facts[2])
	}

	wantRejected := map[int]string{3: "column", 4: "page", 5: "section", 6: "value"}
	if len(rejected) != len(wantRejected) {
		t.Fatalf("rejected = %v", rejected)
	}
	for _, r := range rejected {
		if wantRejected[r.Index] != r.Field {
			t.Errorf("item %d rejected on %q, want %q", r.Index, r.Field, wantRejected[r.Index])
		}
	}
}
