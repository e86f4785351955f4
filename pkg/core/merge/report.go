package merge

import (
	"fmt"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Check string

const (
	CheckUnitPresence        Check = "unit_presence"
	CheckNumericParseability Check = "numeric_parseability"
	CheckKnownContext        Check = "known_context"
	CheckEmptyValue          Check = "empty_value"
	CheckLowConfidenceUnit   Check = "low_confidence_unit"
	CheckUnresolvedValue     Check = "unresolved_value"
	CheckRowIDReassigned     Check = "row_id_reassigned"
)

type Failure struct {
	Ref      models.RecordRef `json:"record_ref"`
	Check    Check            `json:"check"`
	Severity Severity         `json:"severity"`
	Reason   string           `json:"reason"`
}

// PageIssue records a page the extraction stage could not fully process.
type PageIssue struct {
	Page     int    `json:"page"`
	Skipped  bool   `json:"skipped"`
	TextOnly bool   `json:"text_only"`
	Reason   string `json:"reason"`
}

// Report is rebuilt from scratch on every merge pass.
type Report struct {
	TotalRecords      int         `json:"total_records"`
	Passed            int         `json:"passed"`
	Failed            int         `json:"failed"`
	Warnings          int         `json:"warnings"`
	DuplicatesRemoved int         `json:"duplicates_removed"`
	Failures          []Failure   `json:"failures"`
	PageIssues        []PageIssue `json:"page_issues,omitempty"`
}

func (r Report) HardFailures() []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

// MissingHints phrases hard failures and page issues as missing-information
// entries for the next structuring pass. limit <= 0 means no limit.
func (r Report) MissingHints(limit int) []string {
	var hints []string
	add := func(s string) bool {
		if limit > 0 && len(hints) >= limit {
			return false
		}
		hints = append(hints, s)
		return true
	}
	for _, p := range r.PageIssues {
		if p.Skipped && !add(fmt.Sprintf("page %d could not be extracted: %s", p.Page, p.Reason)) {
			return hints
		}
	}
	for _, f := range r.HardFailures() {
		if !add(fmt.Sprintf("page %d %s row %d: %s", f.Ref.Page, f.Ref.Section, f.Ref.RowID, f.Reason)) {
			return hints
		}
	}
	return hints
}
