package convert

import (
	"github.com/dgallion1/wikiport/internal/doctree"
	"github.com/dgallion1/wikiport/internal/names"
)

type listLevel struct {
	ordered bool
}

// Context is the mutable render state for converting one document. It
// must not be shared between documents or goroutines.
type Context struct {
	Title    string
	Resolver *names.Resolver

	lists    []listLevel
	verbatim []string
	warnings int
}

// NewContext returns a fresh context for the document title. A nil
// resolver means the stock File/Image aliases.
func NewContext(title string, resolver *names.Resolver, verbatim []string) *Context {
	if resolver == nil {
		resolver = names.DefaultResolver()
	}
	return &Context{
		Title:    title,
		Resolver: resolver,
		verbatim: verbatim,
	}
}

// ContextFor builds a context from a parsed tree.
func ContextFor(tree *doctree.Tree, resolver *names.Resolver) *Context {
	return NewContext(tree.Title, resolver, tree.Verbatim)
}

func (c *Context) pushList(ordered bool) {
	c.lists = append(c.lists, listLevel{ordered: ordered})
}

func (c *Context) popList() {
	if len(c.lists) > 0 {
		c.lists = c.lists[:len(c.lists)-1]
	}
}

// ListDepth is the number of enclosing lists.
func (c *Context) ListDepth() int {
	return len(c.lists)
}

func (c *Context) listMarker() string {
	if len(c.lists) == 0 {
		return "*"
	}
	if c.lists[len(c.lists)-1].ordered {
		return "-"
	}
	return "*"
}

// Warnings is the number of anomalies reported so far.
func (c *Context) Warnings() int {
	return c.warnings
}
