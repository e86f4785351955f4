// Package units parses free-form numeric strings ("$115.5 million",
// "457 thousand", "(2.0)", "30 %") into a numeric value and a canonical unit
// label, with an optional external classifier for strings no pattern covers.
package units

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
)

// Method records how a Result was obtained.
type Method int

const (
	// MethodNone: the string has no digits and is treated as a label.
	MethodNone Method = iota
	MethodPattern
	// MethodFallback: resolved by the classifier; accepted as-is, low confidence.
	MethodFallback
	// MethodUnresolved: digits present but nothing could parse it.
	MethodUnresolved
)

func (m Method) String() string {
	switch m {
	case MethodPattern:
		return "pattern"
	case MethodFallback:
		return "fallback"
	case MethodUnresolved:
		return "unresolved"
	default:
		return "none"
	}
}

type Result struct {
	Value  *float64
	Unit   string
	Method Method
}

func (r Result) LowConfidence() bool { return r.Method == MethodFallback }

// Classifier is the external best-guess conversion used when no pattern matches.
type Classifier interface {
	ClassifyUnit(ctx context.Context, raw string) (*float64, string, error)
}

type Normalizer struct {
	classifier Classifier
}

// NewNormalizer builds a normalizer. A nil classifier disables the fallback.
func NewNormalizer(classifier Classifier) *Normalizer {
	return &Normalizer{classifier: classifier}
}

// Normalize runs the pattern list, then the classifier for non-trivial strings.
func (n *Normalizer) Normalize(ctx context.Context, raw string) Result {
	res, ok := Parse(raw)
	if ok || !NeedsFallback(raw) || n == nil || n.classifier == nil {
		return res
	}
	return n.Classify(ctx, raw)
}

// Classify calls the fallback classifier directly. Errors leave the value unresolved.
func (n *Normalizer) Classify(ctx context.Context, raw string) Result {
	if n == nil || n.classifier == nil {
		return Result{Method: MethodUnresolved}
	}
	v, unit, err := n.classifier.ClassifyUnit(ctx, raw)
	if err != nil {
		logger.FromContext(ctx).Warn("unit fallback failed", "value", raw, "error", err)
		return Result{Method: MethodUnresolved}
	}
	return Result{Value: v, Unit: CanonicalUnit(unit), Method: MethodFallback}
}

// HasFallback reports whether a classifier is configured.
func (n *Normalizer) HasFallback() bool { return n != nil && n.classifier != nil }

var (
	parenRe     = regexp.MustCompile(`^\((.*)\)$`)
	thousandsRe = regexp.MustCompile(`(\d),(\d{3})`)
	bareCountRe = regexp.MustCompile(`^[-+]?\d+$`)
)

// prepare trims, unwraps accounting parentheses and strips thousands separators.
func prepare(raw string) (string, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "−", "-"))
	negative := false
	if m := parenRe.FindStringSubmatch(s); m != nil {
		negative = true
		s = strings.TrimSpace(m[1])
	}
	for {
		next := thousandsRe.ReplaceAllString(s, "$1$2")
		if next == s {
			break
		}
		s = next
	}
	return s, negative
}

// Parse applies the pattern list only. ok is false when the string has digits
// but no pattern matched.
func Parse(raw string) (Result, bool) {
	if !hasDigit(raw) {
		return Result{Method: MethodNone}, true
	}
	s, negative := prepare(raw)
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		num, err := parseNumber(group(m, p.re, "num"))
		if err != nil {
			continue
		}
		if group(m, p.re, "sign") == "-" {
			negative = !negative
		}
		if negative {
			num = num.Neg()
		}
		f := num.InexactFloat64()
		return Result{Value: &f, Unit: p.unit(m, p.re), Method: MethodPattern}, true
	}
	return Result{Method: MethodUnresolved}, false
}

func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	} else if strings.HasPrefix(s, "-.") {
		s = "-0" + s[1:]
	}
	return decimal.NewFromString(s)
}

// NeedsFallback is true for strings worth an external call: longer than two
// characters, containing a digit and not a date or period label.
func NeedsFallback(raw string) bool {
	s := strings.TrimSpace(raw)
	return len([]rune(s)) > 2 && hasDigit(s) && !IsDateLike(s)
}

var dateRes = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$`),
	regexp.MustCompile(`^\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}$`),
	regexp.MustCompile(`(?i)^(?:fy\s*)?\d{4}\s*[-–−/]\s*(?:fy\s*)?\d{2,4}$`),
}

// IsDateLike matches calendar dates ("2024-12-31", "31/12/2024") and year
// ranges ("2023 - 2024", "FY2023-24").
func IsDateLike(raw string) bool {
	s := strings.TrimSpace(raw)
	for _, re := range dateRes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

var (
	unitWordsRe   = regexp.MustCompile(`(?i)thousands?|millions?|billions?|trillions?|per\s*cent|percent|pct|usd|eur|gbp|jpy|dollars?|euros?|us\$|\bmm\b|\bmn\b|\bbn\b`)
	scaleSuffixRe = regexp.MustCompile(`(?i)(\d)\s*[kmbt]\b`)
)

// quantityRe is one number with an optional sign, currency and percent
// marker, after unit words and scale suffixes are removed.
var quantityRe = regexp.MustCompile(`^[+\-−]?\s*[$€£¥]?\s*[+\-−]?\s*\.?\d[\d,.]*\s*[$€£¥]?\s*%?$`)

// LooksNumeric reports whether the value is shaped like a single quantity.
// Parentheses count only as one outer wrap; dates and ranges are not
// quantities.
func LooksNumeric(raw string) bool {
	if !hasDigit(raw) || IsDateLike(raw) {
		return false
	}
	s := unitWordsRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(scaleSuffixRe.ReplaceAllString(s, "$1"))
	if strings.HasPrefix(s, "(") != strings.HasSuffix(s, ")") {
		return false
	}
	if strings.HasPrefix(s, "(") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return quantityRe.MatchString(s)
}

// IsBareCount reports a plain integer with no unit markers ("457", "(12)").
func IsBareCount(raw string) bool {
	s, _ := prepare(raw)
	return bareCountRe.MatchString(s)
}

var unitTokenRe = regexp.MustCompile(`us\$|[$€£¥%]|[a-z]+`)

// CanonicalUnit maps free-form unit labels ("USD millions", "$M", "percent")
// onto the normalizer's vocabulary. Unknown labels are returned trimmed.
func CanonicalUnit(label string) string {
	trimmed := strings.TrimSpace(label)
	lower := strings.ToLower(trimmed)
	if lower == "" {
		return ""
	}
	var scale, cur string
	percent := false
	for _, tok := range unitTokenRe.FindAllString(lower, -1) {
		switch {
		case tok == "%" || tok == "percent" || tok == "pct" || tok == "percentage":
			percent = true
		case scaleWords[tok] != "" && scale == "":
			scale = scaleWords[tok]
		case currencyCodes[tok] != "" && cur == "":
			cur = currencyCodes[tok]
		}
	}
	switch {
	case percent:
		return "%"
	case scale != "" && cur != "":
		return scale + " " + cur
	case scale != "":
		return scale
	case cur != "":
		return cur
	}
	return trimmed
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
