package units

import (
	"regexp"
	"strings"
)

const (
	numberExpr   = `(?P<num>[-+]?(?:\d+(?:\.\d+)?|\.\d+))`
	scaleExpr    = `(?P<scale>thousands?|millions?|billions?|trillions?|mm|mn|bn|k|m|b|t)\.?`
	curPrefix    = `(?P<cur>us\$|\$|usd|€|eur|£|gbp|¥|jpy)`
	curSuffix    = `(?P<cur>usd|eur|gbp|jpy|dollars?|euros?)`
	percentExpr  = `(?:%|percent|per\s*cent|pct)`
	signExpr     = `(?P<sign>[-+])?`
	patternFlags = `(?i)`
)

type pattern struct {
	name string
	re   *regexp.Regexp
	unit func(m []string, re *regexp.Regexp) string
}

func compile(expr string) *regexp.Regexp {
	return regexp.MustCompile(patternFlags + `^` + expr + `$`)
}

func group(m []string, re *regexp.Regexp, name string) string {
	idx := re.SubexpIndex(name)
	if idx < 0 || idx >= len(m) {
		return ""
	}
	return m[idx]
}

// patterns are ordered from most to least specific; the first match wins.
var patterns = []pattern{
	{
		name: "currency_scale",
		re:   compile(signExpr + `\s*` + curPrefix + `\s*` + numberExpr + `\s*` + scaleExpr),
		unit: func(m []string, re *regexp.Regexp) string {
			return scaleWord(group(m, re, "scale")) + " " + currencyCode(group(m, re, "cur"))
		},
	},
	{
		name: "scale_currency",
		re:   compile(numberExpr + `\s*` + scaleExpr + `\s*` + curSuffix),
		unit: func(m []string, re *regexp.Regexp) string {
			return scaleWord(group(m, re, "scale")) + " " + currencyCode(group(m, re, "cur"))
		},
	},
	{
		name: "currency",
		re:   compile(signExpr + `\s*` + curPrefix + `\s*` + numberExpr),
		unit: func(m []string, re *regexp.Regexp) string {
			return currencyCode(group(m, re, "cur"))
		},
	},
	{
		name: "number_currency",
		re:   compile(numberExpr + `\s*` + curSuffix),
		unit: func(m []string, re *regexp.Regexp) string {
			return currencyCode(group(m, re, "cur"))
		},
	},
	{
		name: "scale",
		re:   compile(numberExpr + `\s*` + scaleExpr),
		unit: func(m []string, re *regexp.Regexp) string {
			return scaleWord(group(m, re, "scale"))
		},
	},
	{
		name: "percent",
		re:   compile(numberExpr + `\s*` + percentExpr),
		unit: func([]string, *regexp.Regexp) string { return "%" },
	},
	{
		name: "plain",
		re:   compile(numberExpr),
		unit: func([]string, *regexp.Regexp) string { return "" },
	},
}

var scaleWords = map[string]string{
	"k": "thousand", "thousand": "thousand", "thousands": "thousand",
	"m": "million", "mm": "million", "mn": "million", "million": "million", "millions": "million",
	"b": "billion", "bn": "billion", "billion": "billion", "billions": "billion",
	"t": "trillion", "trillion": "trillion", "trillions": "trillion",
}

var currencyCodes = map[string]string{
	"$": "USD", "us$": "USD", "usd": "USD", "dollar": "USD", "dollars": "USD",
	"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
	"£": "GBP", "gbp": "GBP",
	"¥": "JPY", "jpy": "JPY",
}

func scaleWord(s string) string {
	return scaleWords[strings.ToLower(strings.TrimSuffix(s, "."))]
}

func currencyCode(s string) string {
	return currencyCodes[strings.ToLower(s)]
}
