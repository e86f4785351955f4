// Package extract adapts LLM generators into the three capabilities the
// pipeline consumes: batch structuring, coverage verification and unit
// classification. Every response is parsed leniently and then coerced into
// typed values before it leaves the package.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/utils"
)

// ErrMalformedResponse marks a response that could not be turned into the
// expected shape.
var ErrMalformedResponse = errors.New("extract: malformed LLM response")

// Generator is a role-bound text generator.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

func decode(raw string) (interface{}, error) {
	var v interface{}
	if _, err := utils.SmartParse(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return v, nil
}

// asItems accepts a bare array, or an object wrapping one array under any key.
func asItems(v interface{}) ([]map[string]any, bool) {
	switch t := v.(type) {
	case []interface{}:
		items := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]interface{}); ok {
				items = append(items, m)
			}
		}
		return items, len(items) == len(t)
	case map[string]interface{}:
		for _, key := range []string{"records", "items", "facts", "data", "results"} {
			if inner, ok := t[key]; ok {
				return asItems(inner)
			}
		}
		if len(t) == 1 {
			for _, inner := range t {
				if _, ok := inner.([]interface{}); ok {
					return asItems(inner)
				}
			}
		}
		// A single fact object.
		if _, ok := t["value"]; ok {
			return []map[string]any{t}, true
		}
		if _, ok := t["text"]; ok {
			return []map[string]any{t}, true
		}
	}
	return nil, false
}

// asNumber reads numbers that arrive as JSON numbers or strings such as
// "85", "85%" or "1,234.5". NaN and infinities are rejected.
func asNumber(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case int:
		f = float64(t)
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		s = strings.ReplaceAll(s, ",", "")
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asStrings(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			var s string
			switch x := e.(type) {
			case string:
				s = x
			case nil:
				continue
			default:
				b, _ := json.Marshal(x)
				s = string(b)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}
