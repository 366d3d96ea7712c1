package convert

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	"github.com/dgallion1/wikiport/internal/parser"
)

// Result is one converted document.
type Result struct {
	Text     string
	Warnings int
}

// Render converts a parsed tree with a fresh context. The start of the
// document counts as the start of a line.
func (c *Converter) Render(tree *doctree.Tree) Result {
	ctx := ContextFor(tree, c.resolver)
	if tree.Root == nil {
		return Result{}
	}
	out := c.Convert(tree.Root, ctx, true)
	return Result{Text: strings.TrimLeft(out, "\n"), Warnings: ctx.Warnings()}
}

// ConvertPage parses MediaWiki markup and renders it.
func (c *Converter) ConvertPage(title, markup string) (string, error) {
	res, err := c.ConvertSource(strings.NewReader(markup), parser.FormatWikitext, title)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ConvertSource parses r in the given dialect and renders it.
func (c *Converter) ConvertSource(r io.Reader, format parser.Format, title string) (Result, error) {
	p, err := parser.ForFormat(format, c.resolver)
	if err != nil {
		return Result{}, err
	}
	tree, err := p.Parse(r, title)
	if err != nil {
		return Result{}, fmt.Errorf("parse %q: %w", title, err)
	}
	return c.Render(tree), nil
}
