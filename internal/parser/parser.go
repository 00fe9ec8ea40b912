// Package parser extracts plain text from uploaded document files. Each
// parser flattens one format into paragraph-separated text so the
// chunker's paragraph separator lines up with document structure.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jmcalloway/webgest/internal/ingest"
)

// Parser converts raw document bytes into an ingestion document. The
// returned document's Ref and SourceName are both the filename.
type Parser interface {
	Parse(r io.Reader, filename string) (ingest.Document, error)
}

// SupportedExtensions lists file extensions this service can ingest.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a filename's extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// newDocument assembles the common document shape shared by all parsers.
func newDocument(filename, format, text string) ingest.Document {
	return ingest.Document{
		Ref:        filename,
		Text:       text,
		SourceName: filename,
		Metadata: map[string]string{
			"filename": filename,
			"format":   format,
		},
	}
}
