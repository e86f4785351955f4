// Package prompt provides the prompt library for LLM interactions. Prompts
// are JSON documents with a system prompt and a text/template user prompt.
// Defaults are embedded in the binary; a directory can override them at
// runtime without code changes.
package prompt

// Prompt identifiers used by the extraction adapters.
const (
	StructureTable     = "structure.table"
	StructureKeyValue  = "structure.key_value"
	StructureNarrative = "structure.narrative"
	StructureStrict    = "structure.strict"
	VerifyCoverage     = "verify.coverage"
	UnitsClassify      = "units.classify"
)

// RequiredIDs lists every prompt the pipeline renders.
var RequiredIDs = []string{
	StructureTable,
	StructureKeyValue,
	StructureNarrative,
	StructureStrict,
	VerifyCoverage,
	UnitsClassify,
}

// PromptTemplate represents a reusable prompt with metadata
type PromptTemplate struct {
	ID             string `json:"id"`                   // e.g. "structure.table"
	Name           string `json:"name"`                 // Human-readable name
	Category       string `json:"category"`             // structure, verify, units
	Description    string `json:"description"`          // Description of prompt purpose
	SystemPrompt   string `json:"system_prompt"`        // The system prompt content
	UserPromptTmpl string `json:"user_prompt_template"` // Go template for user prompt
	Version        string `json:"version"`
}

// Vars holds the values substituted into a user prompt template.
type Vars map[string]interface{}
