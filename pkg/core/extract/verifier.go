package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/prompt"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

// Verification is the verifier's judgement of one iteration.
type Verification struct {
	Score           float64  `json:"coverage_score"`
	Missing         []string `json:"missing_information"`
	Recommendations []string `json:"recommendations"`
}

type Verifier struct {
	gen     Generator
	prompts *prompt.Registry
}

func NewVerifier(gen Generator, prompts *prompt.Registry) *Verifier {
	return &Verifier{gen: gen, prompts: prompts}
}

// Verify compares source text with the tabulated records. The score is
// clamped to [0, 100].
func (v *Verifier) Verify(ctx context.Context, source string, records []models.Record, iteration int) (Verification, error) {
	system, user, err := v.prompts.Render(prompt.VerifyCoverage, prompt.Vars{
		"Iteration":   iteration,
		"Source":      source,
		"Records":     FormatRecords(records),
		"RecordCount": len(records),
	})
	if err != nil {
		return Verification{}, err
	}

	raw, err := v.gen.Generate(ctx, system, user)
	if err != nil {
		return Verification{}, fmt.Errorf("verify: %w", err)
	}
	return ParseVerification(raw)
}

// ParseVerification reads a verifier response. The score may arrive under
// coverage_score, score or coverage, as a number or a string.
func ParseVerification(raw string) (Verification, error) {
	v, err := decode(raw)
	if err != nil {
		return Verification{}, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return Verification{}, fmt.Errorf("%w: expected an object", ErrMalformedResponse)
	}

	var (
		score float64
		found bool
	)
	for _, key := range []string{"coverage_score", "score", "coverage"} {
		if raw, ok := obj[key]; ok {
			score, found = asNumber(raw)
			break
		}
	}
	if !found {
		return Verification{}, fmt.Errorf("%w: no numeric coverage_score", ErrMalformedResponse)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	out := Verification{Score: score}
	for _, key := range []string{"missing_information", "missing"} {
		if raw, ok := obj[key]; ok {
			out.Missing = asStrings(raw)
			break
		}
	}
	out.Recommendations = asStrings(obj["recommendations"])
	return out, nil
}

// FormatRecords renders records one per line for the verifier prompt.
func FormatRecords(records []models.Record) string {
	var sb strings.Builder
	for _, r := range records {
		fmt.Fprintf(&sb, "p%d | %s | %s | %s | %s", r.Page, r.Section, r.Context, r.Column, r.Value)
		if r.Unit != "" {
			fmt.Fprintf(&sb, " [%s]", r.Unit)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
