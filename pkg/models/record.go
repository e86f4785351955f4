package models

import (
	"fmt"
	"sort"
	"strings"
)

// Section tags where a record came from in the source document.
type Section string

const (
	SectionTable     Section = "Table"
	SectionKeyValue  Section = "KeyValue"
	SectionNarrative Section = "Narrative"
)

// Sections lists every valid section in sort order.
var Sections = []Section{SectionTable, SectionKeyValue, SectionNarrative}

// Order is the section's position in the canonical sort (Table < KeyValue < Narrative).
// Unknown sections sort last.
func (s Section) Order() int {
	for i, known := range Sections {
		if s == known {
			return i
		}
	}
	return len(Sections)
}

func (s Section) Valid() bool {
	return s.Order() < len(Sections)
}

// ParseSection accepts the canonical tags plus the aliases LLMs tend to emit
// ("key_value", "kv", "form", "text", "paragraph", ...).
func ParseSection(raw string) (Section, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	switch key {
	case "table", "tables", "tablecell", "cell":
		return SectionTable, true
	case "keyvalue", "keyvalues", "keyvaluepair", "kv", "form", "forms", "field":
		return SectionKeyValue, true
	case "narrative", "text", "paragraph", "prose", "line":
		return SectionNarrative, true
	}
	return Section(raw), false
}

// Flags carry pipeline annotations that are not part of the wire shape.
type Flags uint8

const (
	// FlagEmptyValue marks a table or key-value cell whose value was blank.
	FlagEmptyValue Flags = 1 << iota
	// FlagLowConfidenceUnit marks a unit resolved by the fallback classifier.
	FlagLowConfidenceUnit
	// FlagFromLLM marks records produced from structuring output rather than raw blocks.
	FlagFromLLM
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Record is the canonical output row. The JSON form carries exactly the seven
// exported wire keys; NumericValue and Flags stay in-process.
type Record struct {
	Page    int     `json:"page"`
	Section Section `json:"section"`
	RowID   int     `json:"row_id"`
	Column  string  `json:"column"`
	Value   string  `json:"value"`
	Unit    string  `json:"unit"`
	Context string  `json:"context"`

	NumericValue *float64 `json:"-"`
	Flags        Flags    `json:"-"`
}

// RecordRef identifies a record within one run.
type RecordRef struct {
	Page    int     `json:"page"`
	Section Section `json:"section"`
	RowID   int     `json:"row_id"`
}

func (r RecordRef) String() string {
	return fmt.Sprintf("p%d/%s/%d", r.Page, r.Section, r.RowID)
}

func (r Record) Ref() RecordRef {
	return RecordRef{Page: r.Page, Section: r.Section, RowID: r.RowID}
}

// Less is the canonical total order: page, section order, row_id.
func Less(a, b Record) bool {
	if a.Page != b.Page {
		return a.Page < b.Page
	}
	if a.Section.Order() != b.Section.Order() {
		return a.Section.Order() < b.Section.Order()
	}
	return a.RowID < b.RowID
}

// SortRecords sorts in place by the canonical order.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return Less(records[i], records[j])
	})
}

// Float returns a pointer to v, for building NumericValue literals.
func Float(v float64) *float64 { return &v }
