package chunk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

// Batches are the three typed collections routed to mapping and structuring.
type Batches struct {
	Tables    []models.TableBlock
	KeyValues []models.KeyValueBlock
	Narrative []Chunk
}

func (b Batches) Empty() bool {
	return len(b.Tables) == 0 && len(b.KeyValues) == 0 && len(b.Narrative) == 0
}

// Partition routes each raw block into its batch. Text lines are chunked;
// lines keep their relative order within a page.
func Partition(blocks []models.RawBlock, opts Options) Batches {
	var (
		b     Batches
		lines []models.TextLine
	)
	for _, blk := range blocks {
		switch v := blk.(type) {
		case models.TableBlock:
			b.Tables = append(b.Tables, v)
		case models.KeyValueBlock:
			b.KeyValues = append(b.KeyValues, v)
		case models.TextLine:
			lines = append(lines, v)
		}
	}
	sort.SliceStable(b.Tables, func(i, j int) bool {
		if b.Tables[i].Page != b.Tables[j].Page {
			return b.Tables[i].Page < b.Tables[j].Page
		}
		return b.Tables[i].Index < b.Tables[j].Index
	})
	sort.SliceStable(b.KeyValues, func(i, j int) bool {
		if b.KeyValues[i].Page != b.KeyValues[j].Page {
			return b.KeyValues[i].Page < b.KeyValues[j].Page
		}
		return b.KeyValues[i].Index < b.KeyValues[j].Index
	})
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Page < lines[j].Page })
	b.Narrative = Split(lines, opts)
	return b
}

// PartitionPages flattens extracted pages and partitions them.
func PartitionPages(pages []models.PageBlocks, opts Options) Batches {
	var blocks []models.RawBlock
	for _, p := range pages {
		if p.Skipped {
			continue
		}
		blocks = append(blocks, p.Blocks()...)
	}
	return Partition(blocks, opts)
}

// Has reports whether the batch for s is non-empty.
func (b Batches) Has(s models.Section) bool {
	switch s {
	case models.SectionTable:
		return len(b.Tables) > 0
	case models.SectionKeyValue:
		return len(b.KeyValues) > 0
	case models.SectionNarrative:
		return len(b.Narrative) > 0
	}
	return false
}

// SourceText renders the batches back into page-ordered plain text, the
// reference a verifier compares tabulated records against.
func (b Batches) SourceText() string {
	return b.render(true, true, true)
}

// Payload renders only one section's blocks, the input of a structuring call.
func (b Batches) Payload(s models.Section) string {
	return b.render(s == models.SectionTable, s == models.SectionKeyValue, s == models.SectionNarrative)
}

func (b Batches) render(tables, kvs, narrative bool) string {
	pages := make(map[int]*strings.Builder)
	var order []int
	page := func(n int) *strings.Builder {
		if sb, ok := pages[n]; ok {
			return sb
		}
		sb := &strings.Builder{}
		pages[n] = sb
		order = append(order, n)
		return sb
	}

	if tables {
		for _, t := range b.Tables {
			sb := page(t.Page)
			for i, row := range t.Rows {
				sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
				if i == 0 {
					sb.WriteString("|" + strings.Repeat(" --- |", len(row)) + "\n")
				}
			}
			sb.WriteString("\n")
		}
	}
	if kvs {
		for _, kv := range b.KeyValues {
			fmt.Fprintf(page(kv.Page), "%s: %s\n", kv.Key, kv.Value)
		}
	}
	if narrative {
		for _, c := range b.Narrative {
			sb := page(c.Page)
			sb.WriteString(c.Text())
			sb.WriteString("\n")
		}
	}

	sort.Ints(order)
	var out strings.Builder
	for _, n := range order {
		fmt.Fprintf(&out, "--- Page %d ---\n", n)
		out.WriteString(strings.TrimRight(pages[n].String(), "\n"))
		out.WriteString("\n\n")
	}
	return strings.TrimSpace(out.String())
}
