package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// StripCodeFence removes a surrounding ``` or ```json fence from LLM output.
func StripCodeFence(input string) string {
	s := strings.TrimSpace(input)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractJSONSpan returns the text between the first opening brace/bracket and
// the last matching closer, dropping conversational text around a payload.
func ExtractJSONSpan(input string) string {
	start := strings.IndexAny(input, "{[")
	if start < 0 {
		return input
	}
	closer := byte('}')
	if input[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(input, closer)
	if end <= start {
		return input[start:]
	}
	return input[start : end+1]
}

// RepairJSON attempts to fix common JSON errors from LLM outputs: missing
// quotes, single quotes, unclosed containers, trailing commas, comments.
func RepairJSON(malformedJSON string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformedJSON)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %v", err)
	}
	return repaired, nil
}

// ParseHJSON parses Human-friendly JSON (comments, unquoted keys and strings,
// optional commas) and returns standard JSON.
func ParseHJSON(hjsonData string) (string, error) {
	var result interface{}
	if err := hjson.Unmarshal([]byte(hjsonData), &result); err != nil {
		return "", fmt.Errorf("HJSON_PARSE_ERROR: %v", err)
	}
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("JSON_MARSHAL_ERROR: %v", err)
	}
	return string(jsonBytes), nil
}

// SmartParse tries multiple parsing strategies to decode LLM output into target.
// Order of attempts:
// 1. Standard JSON on the fence-stripped text
// 2. Standard JSON on the extracted {...} / [...] span
// 3. JSON repair
// 4. Hjson (most lenient)
// Returns the JSON text that decoded successfully.
func SmartParse(input string, target interface{}) (string, error) {
	cleaned := StripCodeFence(input)
	if err := json.Unmarshal([]byte(cleaned), target); err == nil {
		return cleaned, nil
	}

	span := ExtractJSONSpan(cleaned)
	if span != cleaned {
		if err := json.Unmarshal([]byte(span), target); err == nil {
			return span, nil
		}
	}

	if repaired, err := RepairJSON(span); err == nil {
		if err := json.Unmarshal([]byte(repaired), target); err == nil {
			return repaired, nil
		}
	}

	if hjsonResult, err := ParseHJSON(span); err == nil {
		if err := json.Unmarshal([]byte(hjsonResult), target); err == nil {
			return hjsonResult, nil
		}
	}

	return "", fmt.Errorf("SMART_PARSE_FAILED: all parsing strategies failed for input")
}
