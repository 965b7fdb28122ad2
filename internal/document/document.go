// Package document loads source requirement documents from disk as either
// a single text body or an ordered list of pages.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dshills/storytrace/internal/schema"
)

// Document holds a loaded source document with derived metadata.
// Exactly one of Text or Pages carries the content.
type Document struct {
	Path  string
	Hash  string // "sha256:<hex>" of the raw bytes
	Text  string
	Pages []schema.Page
}

// HasPages reports whether the document exposes page structure, which is
// what enables the retrieval index.
func (d *Document) HasPages() bool { return len(d.Pages) > 0 }

// Load reads a document, choosing a parser by file extension: .pdf yields
// pages, .docx paragraph text, .json pretty-printed JSON, anything else is
// read as UTF-8 text.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	sum := sha256.Sum256(data)
	doc := &Document{
		Path: path,
		Hash: fmt.Sprintf("sha256:%x", sum),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc.Pages, err = parsePDF(data)
	case ".docx":
		doc.Text, err = parseDOCX(data)
	case ".json":
		doc.Text, err = parseJSON(data)
	default:
		doc.Text = string(bytes.ToValidUTF8(data, nil))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

func parsePDF(data []byte) ([]schema.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	n := reader.NumPage()
	pages := make([]schema.Page, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			// A page that fails to decode keeps its slot so numbering stays 1-based and contiguous.
			if t, err := page.GetPlainText(nil); err == nil {
				text = t
			}
		}
		pages = append(pages, schema.Page{Number: i, Text: text})
	}
	return pages, nil
}

func parseJSON(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	return buf.String(), nil
}
