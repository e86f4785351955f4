package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed resources/prompts
var embedded embed.FS

const embeddedRoot = "resources/prompts"

// LoadFromDirectory loads prompts from baseDir/prompts on top of whatever is
// already registered; a file with an existing ID replaces it.
// Expected structure:
//
//	baseDir/
//	  prompts/
//	    structure/
//	      table.json
//	    verify/
//	      coverage.json
func (r *Registry) LoadFromDirectory(baseDir string) error {
	dir := filepath.Join(baseDir, "prompts")
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("prompts directory not found: %s", dir)
	}
	return r.LoadFS(os.DirFS(dir), ".")
}

// LoadFS walks root inside fsys and registers every .json file.
func (r *Registry) LoadFS(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		var pt PromptTemplate
		if err := json.Unmarshal(data, &pt); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if pt.ID == "" {
			pt.ID = generateIDFromPath(rel)
		}
		if pt.Category == "" {
			pt.Category = detectCategory(rel)
		}

		if err := r.Register(&pt); err != nil {
			return fmt.Errorf("failed to register %s: %w", pt.ID, err)
		}
		return nil
	})
}

// generateIDFromPath creates a prompt ID from the relative file path
// e.g., "structure/table.json" -> "structure.table"
func generateIDFromPath(rel string) string {
	rel = strings.TrimSuffix(rel, ".json")
	return strings.ReplaceAll(rel, "/", ".")
}

// detectCategory extracts the category from the folder structure
func detectCategory(rel string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return "default"
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"json": func(v interface{}) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		return string(b), err
	},
}

// RenderUserPrompt executes the user prompt template with the given variables
func RenderUserPrompt(pt *PromptTemplate, vars Vars) (string, error) {
	if pt.UserPromptTmpl == "" {
		return "", nil
	}

	tmpl, err := template.New(pt.ID).Funcs(funcs).Parse(pt.UserPromptTmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
