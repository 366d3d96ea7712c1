package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	"github.com/dgallion1/wikiport/internal/names"
)

// Parser converts raw markup into a document tree.
type Parser interface {
	Parse(r io.Reader, title string) (*doctree.Tree, error)
}

// Format names a source markup dialect.
type Format string

const (
	FormatWikitext Format = "wikitext"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatCSV      Format = "csv"
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
)

// SupportedExtensions lists file extensions this tool can convert.
var SupportedExtensions = map[string]Format{
	".wiki":      FormatWikitext,
	".mediawiki": FormatWikitext,
	".mw":        FormatWikitext,
	".txt":       FormatWikitext,
	".md":        FormatMarkdown,
	".markdown":  FormatMarkdown,
	".html":      FormatHTML,
	".htm":       FormatHTML,
	".csv":       FormatCSV,
	".docx":      FormatDOCX,
	".pdf":       FormatPDF,
}

// ForFormat returns the parser for a dialect. The resolver decides which
// link prefixes are namespaces.
func ForFormat(format Format, resolver *names.Resolver) (Parser, error) {
	switch format {
	case FormatWikitext, "":
		return NewWikitextParser(resolver), nil
	case FormatMarkdown:
		return &MarkdownParser{}, nil
	case FormatHTML:
		return &HTMLParser{}, nil
	case FormatCSV:
		return &CSVParser{}, nil
	case FormatDOCX:
		return &DOCXParser{}, nil
	case FormatPDF:
		return &PDFParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, resolver *names.Resolver) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	format, ok := SupportedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
	return ForFormat(format, resolver)
}

// TitleFromFilename strips directory and extension from a source file
// name.
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
