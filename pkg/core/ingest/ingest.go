// Package ingest turns a source document into per-page raw blocks. Document
// analyzers implement the two capabilities the pipeline consumes per page
// (layout analysis for tables and key-values, text detection for lines) and
// the Extractor runs them concurrently across pages with per-page fallback.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

// ErrNoContent is returned when no page of a document yields any block.
var ErrNoContent = errors.New("ingest: document produced no content")

// Analysis is the layout-analysis result for one page. Pages without tables
// or forms return empty slices, not an error.
type Analysis struct {
	Tables    []models.TableBlock
	KeyValues []models.KeyValueBlock
}

// DocumentAnalyzer is bound to one opened document. Page numbers are 1-based.
type DocumentAnalyzer interface {
	NumPages() int
	Analyze(ctx context.Context, page int) (Analysis, error)
	DetectText(ctx context.Context, page int) ([]models.TextLine, error)
}

// Open sniffs the file type and returns the matching analyzer.
func Open(path string) (DocumentAnalyzer, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect file type: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return OpenBytes(data, mt, filepath.Ext(path))
}

// OpenBytes picks an analyzer for data already in memory.
func OpenBytes(data []byte, mt *mimetype.MIME, ext string) (DocumentAnalyzer, error) {
	if mt == nil {
		mt = mimetype.Detect(data)
	}
	switch {
	case mt.Is("application/pdf"):
		return NewPDFAnalyzer(data)
	case mt.Is("text/html") || mt.Is("application/xhtml+xml"):
		return NewHTMLAnalyzer(data)
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return NewMarkdownAnalyzer(data), nil
		}
	}
	switch strings.ToLower(ext) {
	case ".md", ".markdown", ".txt":
		return NewMarkdownAnalyzer(data), nil
	}
	return nil, fmt.Errorf("unsupported document type %s", mt.String())
}

func checkPage(doc DocumentAnalyzer, page int) error {
	if page < 1 || page > doc.NumPages() {
		return fmt.Errorf("page %d out of range [1, %d]", page, doc.NumPages())
	}
	return nil
}
