// Package dedup removes near-duplicate canonical records within a section.
package dedup

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

const DefaultThreshold = 0.85

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:\.[\p{N}]+)?|[$€£¥%]`)

// Deduplicator compares every pair of records in the same section with a
// bag-of-words cosine over column, value and context. Scores depend only on
// the two records compared, so a second pass over the output removes nothing.
// Records whose contexts each carry a word the other lacks ("continuing" vs
// "discontinued operations") are never duplicates, whatever the score.
// Cost is quadratic per section.
type Deduplicator struct {
	Threshold float64
}

func New(threshold float64) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{Threshold: threshold}
}

type vector struct {
	weights map[string]float64
	norm    float64
}

func vectorize(text string) vector {
	counts := make(map[string]int)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		counts[tok]++
	}
	v := vector{weights: make(map[string]float64, len(counts))}
	for tok, n := range counts {
		w := 1 + math.Log(float64(n))
		v.weights[tok] = w
		v.norm += w * w
	}
	v.norm = math.Sqrt(v.norm)
	return v
}

func cosine(a, b vector) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}
	if len(a.weights) > len(b.weights) {
		a, b = b, a
	}
	dot := 0.0
	for tok, w := range a.weights {
		dot += w * b.weights[tok]
	}
	return dot / (a.norm * b.norm)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		set[tok] = true
	}
	return set
}

func missingFrom(a, b map[string]bool) bool {
	for tok := range a {
		if !b[tok] {
			return true
		}
	}
	return false
}

// ContextsConflict is true when both contexts are set and neither one's words
// contain the other's; a context that only adds detail does not conflict.
func ContextsConflict(a, b models.Record) bool {
	return contextsConflict(tokenSet(a.Context), tokenSet(b.Context))
}

func contextsConflict(a, b map[string]bool) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return missingFrom(a, b) && missingFrom(b, a)
}

// Text is the string a record is compared by. Parsed quantities use their
// normalized form so "$115.5 million" and "115.5" + "million USD" agree.
func Text(r models.Record) string {
	value := r.Value
	if r.NumericValue != nil {
		value = strconv.FormatFloat(*r.NumericValue, 'f', -1, 64) + " " + r.Unit
	}
	return r.Column + " " + value + " " + r.Context
}

// Similarity scores two records; identical comparison text scores 1.
func Similarity(a, b models.Record) float64 {
	ta, tb := Text(a), Text(b)
	if strings.EqualFold(strings.TrimSpace(ta), strings.TrimSpace(tb)) {
		return 1
	}
	if ContextsConflict(a, b) {
		return 0
	}
	return cosine(vectorize(ta), vectorize(tb))
}

// preferred orders candidates for retention: longer context first, then the
// earliest (page, section, row_id).
func preferred(a, b models.Record) bool {
	if la, lb := len(a.Context), len(b.Context); la != lb {
		return la > lb
	}
	return models.Less(a, b)
}

// Dedupe returns the surviving records in their input order and how many
// were removed. Input is not modified.
func (d *Deduplicator) Dedupe(records []models.Record) ([]models.Record, int) {
	if len(records) < 2 {
		return append([]models.Record(nil), records...), 0
	}

	bySection := make(map[models.Section][]int)
	for i, r := range records {
		bySection[r.Section] = append(bySection[r.Section], i)
	}

	keep := make([]bool, len(records))
	vectors := make([]vector, len(records))
	contexts := make([]map[string]bool, len(records))
	for i, r := range records {
		vectors[i] = vectorize(Text(r))
		contexts[i] = tokenSet(r.Context)
	}

	for _, idxs := range bySection {
		order := append([]int(nil), idxs...)
		sort.SliceStable(order, func(x, y int) bool {
			return preferred(records[order[x]], records[order[y]])
		})

		var kept []int
		for _, i := range order {
			dup := false
			for _, k := range kept {
				if contextsConflict(contexts[i], contexts[k]) {
					continue
				}
				if d.duplicate(records[i], records[k], vectors[i], vectors[k]) {
					dup = true
					break
				}
			}
			if !dup {
				kept = append(kept, i)
				keep[i] = true
			}
		}
	}

	out := make([]models.Record, 0, len(records))
	for i, r := range records {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out, len(records) - len(out)
}

func (d *Deduplicator) duplicate(a, b models.Record, va, vb vector) bool {
	if strings.EqualFold(strings.TrimSpace(Text(a)), strings.TrimSpace(Text(b))) {
		return true
	}
	return cosine(va, vb) >= d.Threshold
}
