package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateCommand(t *testing.T) {
	valid := writeFile(t, "records.json", `{"job_id":"x","records":[
		{"page":1,"section":"Table","row_id":0,"column":"Q4 2024","value":"$115.5 million","unit":"million USD","context":"Revenue"}
	]}`)
	out, err := execute(t, "validate", valid)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Errorf("output = %s", out)
	}

	invalid := writeFile(t, "bad.json", `[{"page":0,"section":"Chart","row_id":0,"column":"","value":"","unit":"","context":""}]`)
	out, err = execute(t, "validate", invalid)
	if err == nil {
		t.Fatalf("expected schema errors, output = %s", out)
	}
	if !strings.Contains(out, `"valid": false`) {
		t.Errorf("output = %s", out)
	}
}

func TestChunkCommand(t *testing.T) {
	doc := writeFile(t, "report.md", "Revenue grew 33% to $115.5 million.\n\nMargins improved across all segments this quarter.\n")
	cfg := writeFile(t, "extractor.yaml", "chunk:\n  max_tokens: 400\n")
	out, err := execute(t, "chunk", "--config", cfg, "--log-level", "error", doc)
	if err != nil {
		t.Fatalf("chunk: %v\n%s", err, out)
	}
	if !strings.Contains(out, "chunks=") || !strings.Contains(out, "p1-c0") {
		t.Errorf("output = %s", out)
	}
}

func TestRunCommand_Offline(t *testing.T) {
	doc := writeFile(t, "report.md", "| Metric | Q4 2024 |\n|---|---|\n| Revenue | $115.5 million |\n")
	dir := t.TempDir()
	cfg := writeFile(t, "extractor.yaml", "audit:\n  backend: file\n  dir: "+filepath.Join(dir, "audit")+"\n")
	result := filepath.Join(dir, "result.json")
	metricsPath := filepath.Join(dir, "metrics.prom")

	out, err := execute(t, "run", "--config", cfg, "--log-level", "error", "--offline", "--out", result, "--metrics-out", metricsPath, doc)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	data, err := os.ReadFile(result)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"column": "Q4 2024"`, `"unit": "million USD"`, `"offline": true`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("result missing %s:\n%s", want, data)
		}
	}
	if m, err := os.ReadFile(metricsPath); err != nil || !strings.Contains(string(m), "extractor_records_total") {
		t.Errorf("metrics textfile: %v", err)
	}
}

func TestRecordsPayload(t *testing.T) {
	if got := string(recordsPayload([]byte(`{"records":[1]}`))); got != "[1]" {
		t.Errorf("wrapped = %s", got)
	}
	if got := string(recordsPayload([]byte(`[1]`))); got != "[1]" {
		t.Errorf("bare = %s", got)
	}
}
