package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. Each page with text becomes one
// paragraph; PDF carries no heading structure to recover.
type PDFParser struct{}

func (p *PDFParser) Parse(r io.Reader, title string) (tree *doctree.Tree, err error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	// The reader panics on some malformed object graphs.
	defer func() {
		if rec := recover(); rec != nil {
			tree, err = nil, fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	tree = &doctree.Tree{Title: title, Root: doctree.New(doctree.KindArticle)}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if para := pdfParagraph(text); para != nil {
			tree.Root.Append(para)
		}
	}
	return tree, nil
}

// pdfParagraph keeps the page's line breaks but drops blank lines and
// leading indentation, which DokuWiki would read as code blocks.
func pdfParagraph(text string) *doctree.Node {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, literal(line))
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return doctree.New(doctree.KindParagraph, doctree.Text(strings.Join(lines, "\n")), doctree.Text("\n"))
}
