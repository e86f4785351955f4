package utils

import (
	"testing"
)

type verification struct {
	CoverageScore      float64  `json:"coverage_score"`
	MissingInformation []string `json:"missing_information"`
	Recommendations    []string `json:"recommendations"`
}

func TestSmartParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		score   float64
		missing int
	}{
		{"plain", `{"coverage_score": 80, "missing_information": ["EPS"]}`, 80, 1},
		{"fenced", "```json\n{\"coverage_score\": 90, \"missing_information\": []}\n```", 90, 0},
		{"chatty", "Here is the result:\n{\"coverage_score\": 70, \"missing_information\": [\"a\", \"b\"]}\nHope this helps.", 70, 2},
		{"trailing comma", `{"coverage_score": 60, "missing_information": ["x",],}`, 60, 1},
		{"single quotes", `{'coverage_score': 50, 'missing_information': ['y']}`, 50, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v verification
			if _, err := SmartParse(tt.input, &v); err != nil {
				t.Fatalf("SmartParse: %v", err)
			}
			if v.CoverageScore != tt.score || len(v.MissingInformation) != tt.missing {
				t.Errorf("got %+v", v)
			}
		})
	}
}

func TestSmartParse_ArrayPayload(t *testing.T) {
	var items []map[string]any
	if _, err := SmartParse("```\n[{\"column\": \"A\"}, {\"column\": \"B\"}]\n```", &items); err != nil {
		t.Fatalf("SmartParse: %v", err)
	}
	if len(items) != 2 || items[1]["column"] != "B" {
		t.Errorf("got %v", items)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```{\"a\":1}```":         `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range tests {
		if got := StripCodeFence(in); got != want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
