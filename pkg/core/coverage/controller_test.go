package coverage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/chunk"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/extract"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/merge"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/metrics"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

type MockStructurer struct {
	mu            sync.Mutex
	Calls         []extract.StructureRequest
	StructureFunc func(ctx context.Context, req extract.StructureRequest) ([]models.Fact, error)
}

func (m *MockStructurer) Structure(ctx context.Context, req extract.StructureRequest) ([]models.Fact, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()
	if m.StructureFunc != nil {
		return m.StructureFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockStructurer) calls() []extract.StructureRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]extract.StructureRequest(nil), m.Calls...)
}

type MockVerifier struct {
	Calls      []int
	VerifyFunc func(ctx context.Context, source string, records []models.Record, iteration int) (extract.Verification, error)
}

func (m *MockVerifier) Verify(ctx context.Context, source string, records []models.Record, iteration int) (extract.Verification, error) {
	m.Calls = append(m.Calls, iteration)
	return m.VerifyFunc(ctx, source, records, iteration)
}

func scoreAlways(score float64) *MockVerifier {
	return &MockVerifier{VerifyFunc: func(context.Context, string, []models.Record, int) (extract.Verification, error) {
		return extract.Verification{Score: score}, nil
	}}
}

func sampleInput() Input {
	blocks := []models.RawBlock{
		models.TableBlock{Page: 1, Rows: [][]string{{"Metric", "Q4 2024"}, {"Revenue", "$115.5 million"}}},
		models.TextLine{Page: 1, LineNumber: 1, Text: "Revenue grew 33% to $115.5 million"},
	}
	return Input{Batches: chunk.Partition(blocks, chunk.Options{})}
}

func narrativeFacts(ctx context.Context, req extract.StructureRequest) ([]models.Fact, error) {
	if req.Section == models.SectionNarrative {
		return []models.Fact{models.NewNarrativeFact(1, "Operating margin expanded to 12%")}, nil
	}
	return nil, nil
}

func newController(s Structurer, v Verifier, cfg Config, m *metrics.Metrics) *Controller {
	return NewController(s, v, merge.NewEngine(nil, merge.Config{DedupThreshold: 0.85}), cfg, m)
}

func testContext() context.Context {
	return logger.ContextWithLogger(context.Background(), logger.NewForTests())
}

func TestRun_MinimumIterations(t *testing.T) {
	v := scoreAlways(100)
	c := newController(&MockStructurer{StructureFunc: narrativeFacts}, v, Config{MaxIterations: 5}, nil)

	out, err := c.Run(testContext(), sampleInput(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.History) != 2 {
		t.Fatalf("expected 2 iterations despite a perfect first score, got %d", len(out.History))
	}
	if out.Final != 1 || out.Score != 100 {
		t.Errorf("final = %d score = %v", out.Final, out.Score)
	}
}

func TestRun_IterationCap(t *testing.T) {
	v := scoreAlways(0)
	s := &MockStructurer{StructureFunc: narrativeFacts}
	c := newController(s, v, Config{MaxIterations: 3}, nil)

	out, err := c.Run(testContext(), sampleInput(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.History) != 3 || len(v.Calls) != 3 {
		t.Fatalf("expected exactly 3 iterations, got %d (verifier calls %d)", len(out.History), len(v.Calls))
	}
	// Table and Narrative batches, once per iteration.
	if got := len(s.calls()); got != 6 {
		t.Errorf("expected 6 structuring calls, got %d", got)
	}
}

func TestRun_RecordsIncludeBaselineAndFacts(t *testing.T) {
	c := newController(&MockStructurer{StructureFunc: narrativeFacts}, scoreAlways(97), Config{}, nil)
	out, err := c.Run(testContext(), sampleInput(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var table, baseline, llm bool
	for _, r := range out.Records {
		switch {
		case r.Section == models.SectionTable && r.Column == "Q4 2024" && r.Context == "Revenue":
			table = r.Unit == "million USD" && r.NumericValue != nil && *r.NumericValue == 115.5
		case r.Section == models.SectionNarrative && strings.Contains(r.Value, "$115.5 million"):
			baseline = true
		case r.Section == models.SectionNarrative && strings.Contains(r.Value, "Operating margin"):
			llm = true
		}
	}
	if !table || !baseline || !llm {
		t.Errorf("table=%v baseline=%v llm=%v records=%+v", table, baseline, llm, out.Records)
	}
	seen := map[models.RecordRef]bool{}
	for _, r := range out.Records {
		if seen[r.Ref()] {
			t.Errorf("duplicate ref %s", r.Ref())
		}
		seen[r.Ref()] = true
	}
}

func TestRun_VerifierFailure(t *testing.T) {
	v := &MockVerifier{VerifyFunc: func(_ context.Context, _ string, _ []models.Record, iteration int) (extract.Verification, error) {
		if iteration == 0 {
			return extract.Verification{}, errors.New("verifier unavailable")
		}
		return extract.Verification{Score: 96}, nil
	}}
	m := metrics.New()
	c := newController(&MockStructurer{StructureFunc: narrativeFacts}, v, Config{MaxIterations: 3}, m)

	out, err := c.Run(testContext(), sampleInput(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	first := out.History[0]
	if !first.Failed || first.Score != 0 || first.RecordCount == 0 {
		t.Errorf("iteration 0 = %+v", first)
	}
	// Verification is retried once before the iteration is failed.
	if v.Calls[0] != 0 || v.Calls[1] != 0 {
		t.Errorf("verifier calls = %v", v.Calls)
	}
	if len(out.History) != 2 || out.Final != 1 {
		t.Errorf("expected to finish on iteration 1, history=%d final=%d", len(out.History), out.Final)
	}
	n, err := testutil.GatherAndCount(m.Registry(), "extractor_loop_iterations_total")
	if err != nil || n != 2 {
		t.Errorf("expected failed and ok iteration series, got %d (%v)", n, err)
	}
}

func TestRun_TwoConsecutiveFailures(t *testing.T) {
	s := &MockStructurer{StructureFunc: func(context.Context, extract.StructureRequest) ([]models.Fact, error) {
		return nil, extract.ErrMalformedResponse
	}}
	v := scoreAlways(100)
	c := newController(s, v, Config{MaxIterations: 5}, nil)

	out, err := c.Run(testContext(), sampleInput(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.History) != 2 {
		t.Fatalf("expected the loop to stop after 2 failed iterations, got %d", len(out.History))
	}
	if len(v.Calls) != 0 {
		t.Errorf("verifier should not run when structuring failed, calls=%v", v.Calls)
	}

	var strict int
	for _, req := range s.calls() {
		if req.Strict {
			strict++
			if req.PreviousError == "" {
				t.Error("strict retry should carry the previous error")
			}
		}
	}
	// Two batches, two iterations, one strict retry each.
	if strict != 4 {
		t.Errorf("expected 4 strict retries, got %d", strict)
	}

	// The deterministic baseline survives a total LLM outage.
	if len(out.Records) != 2 {
		t.Errorf("expected the 2 baseline records, got %+v", out.Records)
	}
	if !strings.Contains(strings.Join(out.History[0].Missing, "\n"), "Table batch could not be structured") {
		t.Errorf("missing = %v", out.History[0].Missing)
	}
}

func TestRun_FinalFallsBackToBestPrior(t *testing.T) {
	v := &MockVerifier{VerifyFunc: func(_ context.Context, _ string, _ []models.Record, iteration int) (extract.Verification, error) {
		if iteration == 1 {
			return extract.Verification{}, errors.New("timeout")
		}
		return extract.Verification{Score: 60}, nil
	}}
	c := newController(&MockStructurer{StructureFunc: narrativeFacts}, v, Config{MaxIterations: 2}, nil)

	out, err := c.Run(testContext(), sampleInput(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Final != 0 || out.Score != 60 {
		t.Errorf("expected iteration 0 (score 60), got final=%d score=%v", out.Final, out.Score)
	}
}

func TestRun_MissingInformationFeedsNextPass(t *testing.T) {
	v := &MockVerifier{VerifyFunc: func(_ context.Context, _ string, _ []models.Record, iteration int) (extract.Verification, error) {
		return extract.Verification{Score: 50, Missing: []string{"Q4 EPS", "Q4 EPS"}}, nil
	}}
	s := &MockStructurer{StructureFunc: narrativeFacts}
	c := newController(s, v, Config{MaxIterations: 2}, nil)

	if _, err := c.Run(testContext(), sampleInput(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, req := range s.calls() {
		switch req.Iteration {
		case 0:
			if len(req.Missing) != 0 {
				t.Errorf("first pass should have no hints, got %v", req.Missing)
			}
		case 1:
			if len(req.Missing) != 1 || req.Missing[0] != "Q4 EPS" {
				t.Errorf("second pass hints = %v", req.Missing)
			}
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext())
	s := &MockStructurer{StructureFunc: func(ctx context.Context, req extract.StructureRequest) ([]models.Fact, error) {
		cancel()
		return nil, ctx.Err()
	}}
	c := newController(s, scoreAlways(100), Config{}, nil)

	out, err := c.Run(ctx, sampleInput(), nil)
	if !errors.Is(err, context.Canceled) || !IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if out.Records != nil {
		t.Error("no records should be returned on cancellation")
	}
}

func TestRun_Events(t *testing.T) {
	events := NewStream(64)
	c := newController(&MockStructurer{StructureFunc: narrativeFacts}, scoreAlways(100), Config{}, nil)
	if _, err := c.Run(testContext(), sampleInput(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}
	events.Close()

	var got []Event
	for e := range events.Events() {
		got = append(got, e)
	}
	if len(got) == 0 || got[0].Type != EventIterationStart || got[len(got)-1].Type != EventFinal {
		t.Fatalf("unexpected event sequence: %+v", got)
	}
	steps := map[string]bool{}
	for _, e := range got {
		if e.Type == EventStepComplete {
			steps[e.Step] = true
		}
		if e.At.IsZero() {
			t.Error("event timestamp not set")
		}
	}
	for _, s := range []string{StepAnalyze, StepTabulate, StepVerify} {
		if !steps[s] {
			t.Errorf("missing step_complete for %s", s)
		}
	}
}

func TestStream_DropsOldest(t *testing.T) {
	s := NewStream(2)
	for i := 0; i < 5; i++ {
		s.Publish(Event{Type: EventIterationStart, Iteration: i})
	}
	if s.Dropped() != 3 {
		t.Errorf("dropped = %d", s.Dropped())
	}
	s.Close()
	s.Publish(Event{Iteration: 99}) // after close: ignored

	var iters []int
	for e := range s.Events() {
		iters = append(iters, e.Iteration)
	}
	if len(iters) != 2 || iters[0] != 3 || iters[1] != 4 {
		t.Errorf("kept events = %v", iters)
	}

	var nilStream *Stream
	nilStream.Publish(Event{})
	nilStream.Close()
}

func TestShouldContinue(t *testing.T) {
	c := NewController(nil, nil, nil, Config{MaxIterations: 3, MinIterations: 2, Threshold: 95}, nil)
	tests := []struct {
		i     int
		score float64
		want  bool
	}{
		{0, 100, true},
		{1, 100, false},
		{1, 94.9, true},
		{2, 0, false},
		{0, 0, true},
	}
	for _, tt := range tests {
		if got := c.shouldContinue(tt.i, tt.score); got != tt.want {
			t.Errorf("shouldContinue(%d, %v) = %v, want %v", tt.i, tt.score, got, tt.want)
		}
	}
}
