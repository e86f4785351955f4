// Package mapper turns raw blocks, narrative chunks and structured facts into
// canonical records. Mapping is pure: the only state is the row_id allocator
// the caller passes in.
package mapper

import (
	"fmt"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/chunk"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

const NarrativeColumn = "text"

type slot struct {
	page    int
	section models.Section
}

// Allocator assigns row_ids sequentially per (page, section), starting at 0.
type Allocator struct {
	next map[slot]int
}

func NewAllocator() *Allocator {
	return &Allocator{next: make(map[slot]int)}
}

func (a *Allocator) Next(page int, section models.Section) int {
	k := slot{page, section}
	id := a.next[k]
	a.next[k] = id + 1
	return id
}

// Reserve makes sure later allocations for the slot start above rowID.
func (a *Allocator) Reserve(page int, section models.Section, rowID int) {
	k := slot{page, section}
	if a.next[k] <= rowID {
		a.next[k] = rowID + 1
	}
}

// Clone copies the allocator so several passes can continue from one baseline.
func (a *Allocator) Clone() *Allocator {
	c := NewAllocator()
	for k, v := range a.next {
		c.next[k] = v
	}
	return c
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(row []string, i int) string {
	if i < len(row) {
		return clean(row[i])
	}
	return ""
}

func blankRow(row []string) bool {
	for _, c := range row {
		if clean(c) != "" {
			return false
		}
	}
	return true
}

func columnLabel(header []string, i int) string {
	if label := cell(header, i); label != "" {
		return label
	}
	return fmt.Sprintf("column_%d", i)
}

// MapTable emits one record per (row, non-header column) cell. The first
// column is the row label and becomes the record context. Short rows are
// padded with empty, flagged cells.
func MapTable(t models.TableBlock, alloc *Allocator) []models.Record {
	if len(t.Rows) < 2 {
		return nil
	}
	header := t.Header()
	width := t.Width()
	var out []models.Record

	for _, row := range t.Rows[1:] {
		if blankRow(row) {
			continue
		}
		if width == 1 {
			out = append(out, newRecord(t.Page, models.SectionTable, alloc, columnLabel(header, 0), cell(row, 0), ""))
			continue
		}
		label := cell(row, 0)
		for c := 1; c < width; c++ {
			out = append(out, newRecord(t.Page, models.SectionTable, alloc, columnLabel(header, c), cell(row, c), label))
		}
	}
	return out
}

func MapKeyValue(kv models.KeyValueBlock, alloc *Allocator) models.Record {
	return newRecord(kv.Page, models.SectionKeyValue, alloc, clean(kv.Key), clean(kv.Value), "")
}

// MapChunk emits one record per non-blank line.
func MapChunk(c chunk.Chunk, alloc *Allocator) []models.Record {
	var out []models.Record
	for _, line := range c.Lines {
		if line.Blank() {
			continue
		}
		out = append(out, newRecord(line.Page, models.SectionNarrative, alloc, NarrativeColumn, clean(line.Text), ""))
	}
	return out
}

// MapFact maps one structured fact; the record is flagged as LLM-derived.
func MapFact(f models.Fact, alloc *Allocator) models.Record {
	f = f.Canonicalize()
	r := newRecord(f.Page, f.Section, alloc, f.Column, f.Value, f.Context)
	r.Unit = f.Unit
	r.Flags |= models.FlagFromLLM
	return r
}

// MapBlock maps a single raw block with a fresh allocator.
func MapBlock(b models.RawBlock) []models.Record {
	alloc := NewAllocator()
	switch v := b.(type) {
	case models.TableBlock:
		return MapTable(v, alloc)
	case models.KeyValueBlock:
		return []models.Record{MapKeyValue(v, alloc)}
	case models.TextLine:
		return MapChunk(chunk.Chunk{Page: v.Page, Lines: []models.TextLine{v}}, alloc)
	}
	return nil
}

func newRecord(page int, section models.Section, alloc *Allocator, column, value, context string) models.Record {
	r := models.Record{
		Page:    page,
		Section: section,
		RowID:   alloc.Next(page, section),
		Column:  column,
		Value:   value,
		Context: context,
	}
	if value == "" {
		r.Flags |= models.FlagEmptyValue
	}
	return r
}

// Mapped holds records split by section, the shape merge consumes.
type Mapped struct {
	Tables    []models.Record
	KeyValues []models.Record
	Narrative []models.Record
}

func (m Mapped) Len() int { return len(m.Tables) + len(m.KeyValues) + len(m.Narrative) }

func (m *Mapped) add(r models.Record) {
	switch r.Section {
	case models.SectionTable:
		m.Tables = append(m.Tables, r)
	case models.SectionKeyValue:
		m.KeyValues = append(m.KeyValues, r)
	default:
		m.Narrative = append(m.Narrative, r)
	}
}

// Append concatenates other onto m per section.
func (m Mapped) Append(other Mapped) Mapped {
	return Mapped{
		Tables:    append(append([]models.Record(nil), m.Tables...), other.Tables...),
		KeyValues: append(append([]models.Record(nil), m.KeyValues...), other.KeyValues...),
		Narrative: append(append([]models.Record(nil), m.Narrative...), other.Narrative...),
	}
}

// MapBatches deterministically maps every batch. The returned allocator is
// positioned after the last assigned row_id of each slot.
func MapBatches(b chunk.Batches) (Mapped, *Allocator) {
	alloc := NewAllocator()
	var m Mapped
	for _, t := range b.Tables {
		for _, r := range MapTable(t, alloc) {
			m.add(r)
		}
	}
	for _, kv := range b.KeyValues {
		m.add(MapKeyValue(kv, alloc))
	}
	for _, c := range b.Narrative {
		for _, r := range MapChunk(c, alloc) {
			m.add(r)
		}
	}
	return m, alloc
}

// MapFacts maps structured facts, continuing from alloc. Facts with an
// unknown section are skipped and counted.
func MapFacts(facts []models.Fact, alloc *Allocator) (Mapped, int) {
	var (
		m       Mapped
		skipped int
	)
	for _, f := range facts {
		if !f.Section.Valid() || f.Page < 1 {
			skipped++
			continue
		}
		m.add(MapFact(f, alloc))
	}
	return m, skipped
}
