package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/prompt"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/units"
)

// UnitClassifier is the LLM fallback for values no unit pattern recognizes.
type UnitClassifier struct {
	gen     Generator
	prompts *prompt.Registry
}

var _ units.Classifier = (*UnitClassifier)(nil)

func NewUnitClassifier(gen Generator, prompts *prompt.Registry) *UnitClassifier {
	return &UnitClassifier{gen: gen, prompts: prompts}
}

// ClassifyUnit returns the model's best guess. A null numeric_value is a valid
// answer meaning "not a quantity".
func (c *UnitClassifier) ClassifyUnit(ctx context.Context, raw string) (*float64, string, error) {
	system, user, err := c.prompts.Render(prompt.UnitsClassify, prompt.Vars{"Value": raw})
	if err != nil {
		return nil, "", err
	}
	out, err := c.gen.Generate(ctx, system, user)
	if err != nil {
		return nil, "", fmt.Errorf("classify unit: %w", err)
	}

	v, err := decode(out)
	if err != nil {
		return nil, "", err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, "", fmt.Errorf("%w: expected an object", ErrMalformedResponse)
	}

	unit, _ := obj["unit"].(string)
	var value *float64
	for _, key := range []string{"numeric_value", "value", "number"} {
		if rawVal, ok := obj[key]; ok && rawVal != nil {
			f, ok := asNumber(rawVal)
			if !ok {
				return nil, "", fmt.Errorf("%w: %s is not numeric: %v", ErrMalformedResponse, key, rawVal)
			}
			value = &f
			break
		}
	}
	return value, strings.TrimSpace(unit), nil
}
