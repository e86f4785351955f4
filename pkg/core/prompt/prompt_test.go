package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_LoadsRequiredPrompts(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if err := r.Require(RequiredIDs...); err != nil {
		t.Fatal(err)
	}
	if got := len(r.ListByCategory("structure")); got != 4 {
		t.Errorf("expected 4 structure prompts, got %d", got)
	}
}

func TestRender_MissingList(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	_, user, err := r.Render(StructureTable, Vars{
		"Iteration": 1,
		"Payload":   "| Metric | Q4 |",
		"Missing":   []string{"Q4 EPS"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(user, "- Q4 EPS") || !strings.Contains(user, "| Metric | Q4 |") {
		t.Errorf("unexpected render:\n%s", user)
	}

	_, user, err = r.Render(StructureTable, Vars{"Iteration": 0, "Payload": "x", "Missing": []string(nil)})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(user, "previous pass") {
		t.Errorf("first pass should not mention missing information:\n%s", user)
	}
}

func TestLoadFromDirectory_Overrides(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "prompts", "verify")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"system_prompt": "custom auditor", "user_prompt_template": "{{.Source}}"}`
	if err := os.WriteFile(filepath.Join(sub, "coverage.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	before := r.Count()
	if err := r.LoadFromDirectory(dir); err != nil {
		t.Fatalf("LoadFromDirectory: %v", err)
	}
	if r.Count() != before {
		t.Errorf("override should replace, count %d -> %d", before, r.Count())
	}
	sys, user, err := r.Render(VerifyCoverage, Vars{"Source": "page text"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if sys != "custom auditor" || user != "page text" {
		t.Errorf("got sys=%q user=%q", sys, user)
	}
	pt, _ := r.GetPrompt(VerifyCoverage)
	if pt.Category != "verify" {
		t.Errorf("category = %q", pt.Category)
	}
}

func TestGetPrompt_NotFound(t *testing.T) {
	if _, err := NewRegistry().GetPrompt("nope"); err == nil {
		t.Fatal("expected error")
	}
}
