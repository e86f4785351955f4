package models

import "strings"

type BlockKind string

const (
	KindTable    BlockKind = "table"
	KindKeyValue BlockKind = "key_value"
	KindTextLine BlockKind = "text_line"
)

// RawBlock is one untransformed unit of document-analysis output.
// Implemented by TableBlock, KeyValueBlock and TextLine only.
type RawBlock interface {
	BlockPage() int
	Kind() BlockKind
}

// TableBlock is a 2-D grid of cell strings; Rows[0] is the header row.
type TableBlock struct {
	Page  int        `json:"page"`
	Index int        `json:"index"`
	Rows  [][]string `json:"rows"`
}

func (t TableBlock) BlockPage() int  { return t.Page }
func (t TableBlock) Kind() BlockKind { return KindTable }

func (t TableBlock) Header() []string {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[0]
}

// Width is the widest row in the grid.
func (t TableBlock) Width() int {
	w := 0
	for _, row := range t.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

type KeyValueBlock struct {
	Page  int    `json:"page"`
	Index int    `json:"index"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (kv KeyValueBlock) BlockPage() int  { return kv.Page }
func (kv KeyValueBlock) Kind() BlockKind { return KindKeyValue }

type TextLine struct {
	Page       int    `json:"page"`
	LineNumber int    `json:"line_number"`
	Text       string `json:"text"`
	Footnote   bool   `json:"footnote,omitempty"`
}

func (l TextLine) BlockPage() int  { return l.Page }
func (l TextLine) Kind() BlockKind { return KindTextLine }

func (l TextLine) Blank() bool { return strings.TrimSpace(l.Text) == "" }

// PageBlocks is everything the extraction stage produced for one page.
type PageBlocks struct {
	Page      int             `json:"page"`
	Tables    []TableBlock    `json:"tables"`
	KeyValues []KeyValueBlock `json:"key_values"`
	Lines     []TextLine      `json:"lines"`

	// TextOnly is set when layout analysis failed and only text detection ran.
	TextOnly bool   `json:"text_only,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Blocks flattens the page into raw blocks: tables, then key-values, then lines.
func (p PageBlocks) Blocks() []RawBlock {
	out := make([]RawBlock, 0, len(p.Tables)+len(p.KeyValues)+len(p.Lines))
	for _, t := range p.Tables {
		out = append(out, t)
	}
	for _, kv := range p.KeyValues {
		out = append(out, kv)
	}
	for _, l := range p.Lines {
		out = append(out, l)
	}
	return out
}

func (p PageBlocks) Empty() bool {
	return len(p.Tables) == 0 && len(p.KeyValues) == 0 && len(p.Lines) == 0
}
