package merge

import (
	"regexp"
	"strings"
)

// defaultContexts merges the generic structural labels with the financial
// metric vocabulary row labels are usually drawn from.
var defaultContexts = []string{
	"header", "label", "data", "total", "subtotal", "summary",
	"revenue", "revenues", "sales", "net sales", "income", "net income", "operating income",
	"profit", "gross profit", "loss", "net loss", "earnings", "eps", "ebitda", "adjusted ebitda",
	"margin", "gross margin", "operating margin", "growth", "cost", "costs", "expenses",
	"operating expenses", "cash", "cash flow", "free cash flow", "assets", "liabilities",
	"equity", "debt", "users", "monthly active users", "mau", "dau", "subscribers",
	"paying subscribers", "members", "customers", "arr", "arpu", "market cap",
	"market capitalization", "valuation", "guidance", "outlook", "shares", "dividend",
	"capex", "capital expenditures", "research and development", "headcount", "employees",
}

var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func normalizeLabel(s string) string {
	return strings.TrimSpace(nonWordRe.ReplaceAllString(strings.ToLower(s), " "))
}

// Ontology is the whitelist the known-context check matches row labels
// against. A context is known when it contains any label as whole words.
type Ontology struct {
	labels []string
}

func NewOntology(labels []string) *Ontology {
	o := &Ontology{}
	for _, l := range labels {
		if n := normalizeLabel(l); n != "" {
			o.labels = append(o.labels, n)
		}
	}
	return o
}

func DefaultOntology() *Ontology { return NewOntology(defaultContexts) }

func (o *Ontology) Known(context string) bool {
	c := normalizeLabel(context)
	if c == "" {
		return true
	}
	padded := " " + c + " "
	for _, l := range o.labels {
		if strings.Contains(padded, " "+l+" ") {
			return true
		}
	}
	return false
}
