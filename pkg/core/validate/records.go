// Package validate checks canonical record sets against the canonical schema
// and coerces loosely-typed structuring output into typed facts.
package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

//go:embed schema/canonical_records.json
var schemaFS embed.FS

const schemaName = "canonical_records.json"

// FieldError is one violated field of one record. Index is the record's
// position in the input, or -1 for document-level problems.
type FieldError struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("[%d].%s: %s", e.Index, e.Field, e.Reason)
}

type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}

func newResult(errs []FieldError) Result {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Index != errs[j].Index {
			return errs[i].Index < errs[j].Index
		}
		return errs[i].Field < errs[j].Field
	})
	if errs == nil {
		errs = []FieldError{}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Validator holds the compiled canonical-record schema.
type Validator struct {
	schema *jsonschema.Schema
}

func New() (*Validator, error) {
	b, err := schemaFS.ReadFile("schema/" + schemaName)
	if err != nil {
		return nil, fmt.Errorf("read embedded schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaName, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(schemaName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Check runs the field-level checks on typed records without touching them.
func Check(records []models.Record) Result {
	var errs []FieldError
	for i, r := range records {
		if r.Page < 1 {
			errs = append(errs, FieldError{i, "page", fmt.Sprintf("must be >= 1, got %d", r.Page)})
		}
		if !r.Section.Valid() {
			errs = append(errs, FieldError{i, "section", fmt.Sprintf("must be one of Table, KeyValue, Narrative, got %q", r.Section)})
		}
		if r.RowID < 0 {
			errs = append(errs, FieldError{i, "row_id", fmt.Sprintf("must be >= 0, got %d", r.RowID)})
		}
		if strings.TrimSpace(r.Column) == "" {
			errs = append(errs, FieldError{i, "column", "must not be empty"})
		}
	}
	return newResult(errs)
}

// Validate runs the field checks and then validates the serialized wire form
// against the schema, reporting each (record, field) once.
func (v *Validator) Validate(records []models.Record) Result {
	res := Check(records)
	if records == nil {
		records = []models.Record{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return newResult(append(res.Errors, FieldError{-1, "$", "marshal: " + err.Error()}))
	}
	seen := make(map[[2]string]bool, len(res.Errors))
	for _, e := range res.Errors {
		seen[[2]string{strconv.Itoa(e.Index), e.Field}] = true
	}
	errs := res.Errors
	for _, e := range v.ValidateJSON(b).Errors {
		k := [2]string{strconv.Itoa(e.Index), e.Field}
		if !seen[k] {
			seen[k] = true
			errs = append(errs, e)
		}
	}
	return newResult(errs)
}

// ValidateJSON validates a raw canonical-record payload.
func (v *Validator) ValidateJSON(data []byte) Result {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return newResult([]FieldError{{-1, "$", "invalid JSON: " + err.Error()}})
	}
	err := v.schema.Validate(doc)
	if err == nil {
		return newResult(nil)
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return newResult([]FieldError{{-1, "$", err.Error()}})
	}
	var errs []FieldError
	for _, leaf := range leaves(ve) {
		errs = append(errs, toFieldError(leaf))
	}
	return newResult(errs)
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

var quotedRe = regexp.MustCompile(`'([^']+)'`)

func toFieldError(ve *jsonschema.ValidationError) FieldError {
	parts := strings.Split(strings.TrimPrefix(ve.InstanceLocation, "/"), "/")
	fe := FieldError{Index: -1, Field: "$", Reason: ve.Message}
	if len(parts) > 0 && parts[0] != "" {
		if idx, err := strconv.Atoi(parts[0]); err == nil {
			fe.Index = idx
			fe.Field = "record"
		}
	}
	switch {
	case len(parts) > 1:
		fe.Field = parts[1]
	case fe.Index >= 0:
		if m := quotedRe.FindStringSubmatch(ve.Message); m != nil {
			fe.Field = m[1]
		}
	}
	return fe
}
