package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/prompt"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/validate"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

// StructureRequest is one structuring call over one typed batch.
type StructureRequest struct {
	Section   models.Section
	Payload   string
	Iteration int
	// Missing carries the prior iteration's missing_information list.
	Missing []string
	// FallbackPage is used for items that do not report a page.
	FallbackPage int
	// Strict selects the stricter retry prompt.
	Strict        bool
	PreviousError string
}

type Structurer struct {
	gen     Generator
	prompts *prompt.Registry
}

func NewStructurer(gen Generator, prompts *prompt.Registry) *Structurer {
	return &Structurer{gen: gen, prompts: prompts}
}

func promptFor(s models.Section, strict bool) string {
	if strict {
		return prompt.StructureStrict
	}
	switch s {
	case models.SectionKeyValue:
		return prompt.StructureKeyValue
	case models.SectionNarrative:
		return prompt.StructureNarrative
	default:
		return prompt.StructureTable
	}
}

// Structure asks the model for facts in one batch and coerces the response
// into typed Facts. Items that cannot be coerced are dropped and logged; a
// response where nothing parses is ErrMalformedResponse.
func (s *Structurer) Structure(ctx context.Context, req StructureRequest) ([]models.Fact, error) {
	if !req.Section.Valid() {
		return nil, fmt.Errorf("structure: invalid section %q", req.Section)
	}
	if strings.TrimSpace(req.Payload) == "" {
		return nil, nil
	}
	page := req.FallbackPage
	if page < 1 {
		page = 1
	}

	system, user, err := s.prompts.Render(promptFor(req.Section, req.Strict), prompt.Vars{
		"Section":       string(req.Section),
		"Payload":       req.Payload,
		"Iteration":     req.Iteration,
		"Missing":       req.Missing,
		"PreviousError": req.PreviousError,
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.gen.Generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("structure %s: %w", req.Section, err)
	}

	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	items, ok := asItems(v)
	if !ok && len(items) == 0 {
		return nil, fmt.Errorf("%w: expected an array of facts", ErrMalformedResponse)
	}

	facts, rejected := validate.CoerceFacts(items, req.Section, page)
	if len(rejected) > 0 {
		log := logger.FromContext(ctx)
		for _, r := range rejected {
			log.Debug("rejected structured item", "section", req.Section, "index", r.Index, "field", r.Field, "reason", r.Reason)
		}
		if len(facts) == 0 {
			return nil, fmt.Errorf("%w: all %d items rejected (first: %s)", ErrMalformedResponse, len(rejected), rejected[0].String())
		}
		log.Warn("structured items rejected", "section", req.Section, "rejected", len(rejected), "kept", len(facts))
	}
	return facts, nil
}
