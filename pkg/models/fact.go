package models

import "strings"

// Fact is a structured item returned by an LLM structuring call, tagged by
// section. Construct through the per-section helpers (or Canonicalize) so the
// section-specific shape holds: key-values have no context and narrative
// facts are unit-less "text" columns.
type Fact struct {
	Section Section `json:"section"`
	Page    int     `json:"page"`
	Column  string  `json:"column"`
	Value   string  `json:"value"`
	Unit    string  `json:"unit,omitempty"`
	Context string  `json:"context,omitempty"`
}

func NewTableFact(page int, column, value, unit, context string) Fact {
	return Fact{Section: SectionTable, Page: page, Column: column, Value: value, Unit: unit, Context: context}.Canonicalize()
}

func NewKeyValueFact(page int, key, value, unit string) Fact {
	return Fact{Section: SectionKeyValue, Page: page, Column: key, Value: value, Unit: unit}.Canonicalize()
}

func NewNarrativeFact(page int, text string) Fact {
	return Fact{Section: SectionNarrative, Page: page, Value: text}.Canonicalize()
}

// Canonicalize trims fields and enforces the per-section shape.
func (f Fact) Canonicalize() Fact {
	f.Column = strings.TrimSpace(f.Column)
	f.Value = strings.TrimSpace(f.Value)
	f.Unit = strings.TrimSpace(f.Unit)
	f.Context = strings.TrimSpace(f.Context)
	switch f.Section {
	case SectionKeyValue:
		f.Context = ""
	case SectionNarrative:
		f.Column = "text"
		f.Unit = ""
		f.Context = ""
	}
	return f
}
