package ingest

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	footnoteRe   = regexp.MustCompile(`^(\[\^?\d{1,3}\]:?|[†‡]+|[¹²³⁴⁵⁶⁷⁸⁹⁰]+)\s*\S`)
	// listMarkerRe markers also open bullets and numbered lists, so they only
	// count as footnotes at the foot of a page.
	listMarkerRe = regexp.MustCompile(`^(\(\d{1,3}\)|\*+)\s*\S`)
	keyValueRe   = regexp.MustCompile(`^([\p{L}][^:|]{0,60}?)\s*:\s+(\S.*)$`)
)

// CleanLine strips control characters and collapses runs of whitespace.
func CleanLine(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u00a0' || unicode.IsSpace(r):
			return ' '
		case r == '\u200b' || r == '\ufeff' || unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// IsFootnote reports whether a line starts with a marker that is always a
// footnote: [1], †, ‡, ¹ or a markdown [^1]: definition.
func IsFootnote(line string) bool {
	return footnoteRe.MatchString(strings.TrimSpace(line))
}

// IsListMarked reports a line opening with (1) or *, which is a footnote only
// inside the trailing footnote block of a page.
func IsListMarked(line string) bool {
	return listMarkerRe.MatchString(strings.TrimSpace(line))
}

// SplitKeyValue splits "Key: value" lines. Keys start with a letter and stay
// short; the colon must be followed by whitespace, so URLs and times are
// left alone.
func SplitKeyValue(line string) (string, string, bool) {
	m := keyValueRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// toLines converts raw strings into numbered, cleaned, footnote-tagged lines.
// Blank strings are kept as blank lines; they mark paragraph breaks.
func toLines(page int, raw []string) []models.TextLine {
	lines := make([]models.TextLine, 0, len(raw))
	for _, r := range raw {
		text := CleanLine(r)
		lines = append(lines, models.TextLine{
			Page:       page,
			LineNumber: len(lines) + 1,
			Text:       text,
			Footnote:   text != "" && IsFootnote(text),
		})
	}
	lines = trimBlankEdges(lines)
	markPageFoot(lines)
	return lines
}

// markPageFoot tags (1) and * lines as footnotes when they sit in the page's
// trailing block, where every later non-blank line is also marked.
func markPageFoot(lines []models.TextLine) {
	for i := len(lines) - 1; i >= 0; i-- {
		l := &lines[i]
		switch {
		case l.Blank() || l.Footnote:
		case IsListMarked(l.Text):
			l.Footnote = true
		default:
			return
		}
	}
}

func trimBlankEdges(lines []models.TextLine) []models.TextLine {
	for len(lines) > 0 && lines[0].Blank() {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1].Blank() {
		lines = lines[:len(lines)-1]
	}
	for i := range lines {
		lines[i].LineNumber = i + 1
	}
	return lines
}

// keyValuesFromLines pulls "Key: value" lines out as key-value blocks.
func keyValuesFromLines(page int, lines []models.TextLine) []models.KeyValueBlock {
	var kvs []models.KeyValueBlock
	for _, l := range lines {
		if l.Footnote {
			continue
		}
		if k, v, ok := SplitKeyValue(l.Text); ok {
			kvs = append(kvs, models.KeyValueBlock{Page: page, Index: len(kvs), Key: k, Value: v})
		}
	}
	return kvs
}

func fold(s string) string {
	return strings.ToLower(CleanLine(s))
}

// dropConsumed removes text lines that merely repeat a table row or a
// key-value pair already captured from the same page.
func dropConsumed(lines []models.TextLine, a Analysis) []models.TextLine {
	if len(a.Tables) == 0 && len(a.KeyValues) == 0 {
		return lines
	}
	consumed := make(map[string]bool)
	for _, t := range a.Tables {
		for _, row := range t.Rows {
			consumed[fold(strings.Join(row, " "))] = true
			consumed[fold(strings.Join(row, " | "))] = true
		}
	}
	for _, kv := range a.KeyValues {
		consumed[fold(kv.Key+": "+kv.Value)] = true
		consumed[fold(kv.Key+" "+kv.Value)] = true
	}

	out := make([]models.TextLine, 0, len(lines))
	for _, l := range lines {
		if !l.Blank() && consumed[fold(l.Text)] {
			continue
		}
		out = append(out, l)
	}
	for i := range out {
		out[i].LineNumber = i + 1
	}
	return out
}
