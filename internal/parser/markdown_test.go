package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/wikiport/internal/doctree"
)

// headingText returns the caption of a section node.
func headingText(sec *doctree.Node) string {
	if sec.Kind != doctree.KindSection || len(sec.Children) == 0 {
		return ""
	}
	return plainText(sec.Children[0])
}

// plainText concatenates every text node below n.
func plainText(n *doctree.Node) string {
	var buf strings.Builder
	doctree.Walk(n, func(c *doctree.Node) bool {
		if c.Kind == doctree.KindText {
			buf.WriteString(c.Caption)
		}
		return true
	})
	return buf.String()
}

func sections(n *doctree.Node) []*doctree.Node {
	var out []*doctree.Node
	for _, c := range n.Children {
		if c.Kind == doctree.KindSection {
			out = append(out, c)
		}
	}
	return out
}

func TestMarkdownParser_HeadingHierarchy(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

### Subsection A1

Subsection A1 content.

## Section B

Section B content.
`
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "doc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tree.Title != "doc" {
		t.Errorf("expected title %q, got %q", "doc", tree.Title)
	}

	// Top-level: one h1 ("Title")
	top := sections(tree.Root)
	if len(top) != 1 {
		t.Fatalf("expected 1 top-level section (h1), got %d", len(top))
	}

	h1 := top[0]
	if got := headingText(h1); got != "Title" {
		t.Errorf("expected h1 title %q, got %q", "Title", got)
	}
	if h1.Level != 1 {
		t.Errorf("expected level 1, got %d", h1.Level)
	}

	// h1 should hold "Intro text." before its subsections
	if h1.Children[1].Kind != doctree.KindParagraph || !strings.Contains(plainText(h1.Children[1]), "Intro text.") {
		t.Errorf("expected intro paragraph under h1, got %v", h1.Children[1].Kind)
	}

	// h1 has two h2 children: "Section A" and "Section B"
	h2s := sections(h1)
	if len(h2s) != 2 {
		t.Fatalf("expected 2 h2 children, got %d", len(h2s))
	}

	secA := h2s[0]
	if got := headingText(secA); got != "Section A" {
		t.Errorf("expected %q, got %q", "Section A", got)
	}

	// Section A has one h3 child
	h3s := sections(secA)
	if len(h3s) != 1 {
		t.Fatalf("expected 1 h3 child under Section A, got %d", len(h3s))
	}
	if got := headingText(h3s[0]); got != "Subsection A1" {
		t.Errorf("expected %q, got %q", "Subsection A1", got)
	}

	if got := headingText(h2s[1]); got != "Section B" {
		t.Errorf("expected %q, got %q", "Section B", got)
	}
}

func TestMarkdownParser_NoHeadings(t *testing.T) {
	input := `Just some plain text.

Another paragraph here.`

	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No headings: one paragraph per block, directly under the root.
	if len(tree.Root.Children) != 2 {
		t.Fatalf("expected 2 paragraphs for headingless markdown, got %d", len(tree.Root.Children))
	}
	for _, c := range tree.Root.Children {
		if c.Kind != doctree.KindParagraph {
			t.Errorf("expected paragraph, got %v", c.Kind)
		}
	}
	if got := plainText(tree.Root.Children[1]); got != "Another paragraph here.\n" {
		t.Errorf("unexpected second paragraph %q", got)
	}
}

func TestMarkdownParser_MixedContentWithCodeBlocks(t *testing.T) {
	input := "# API Reference\n\nSome intro.\n\n## Endpoints\n\nList of endpoints:\n\n```\nGET /api/users\nPOST /api/users\n```\n\nMore text after code.\n"

	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h1 := sections(tree.Root)
	if len(h1) != 1 {
		t.Fatalf("expected 1 top-level section, got %d", len(h1))
	}

	endpoints := sections(h1[0])
	if len(endpoints) != 1 {
		t.Fatalf("expected 1 h2 child, got %d", len(endpoints))
	}

	var pre *doctree.Node
	for _, c := range endpoints[0].Children {
		if c.Kind == doctree.KindPreFormatted {
			pre = c
		}
	}
	if pre == nil {
		t.Fatal("expected a preformatted block for the fenced code")
	}
	if got := plainText(pre); got != "GET /api/users\nPOST /api/users\n" {
		t.Errorf("unexpected code block %q", got)
	}

	last := endpoints[0].Children[len(endpoints[0].Children)-1]
	if !strings.Contains(plainText(last), "More text after code.") {
		t.Errorf("expected post-code text last, got %q", plainText(last))
	}
}

func TestMarkdownParser_ListsAndTables(t *testing.T) {
	input := "- a\n  - b\n- c\n\n| A | B |\n|---|---|\n| 1 | 2 |\n"

	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "mixed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Root.Children) != 2 {
		t.Fatalf("expected list and table, got %d nodes", len(tree.Root.Children))
	}

	list := tree.Root.Children[0]
	if list.Kind != doctree.KindItemList || list.Ordered {
		t.Fatalf("expected unordered list, got %v", list.Kind)
	}
	if len(list.Children) != 2 {
		t.Fatalf("expected 2 items, got %d", len(list.Children))
	}
	first := list.Children[0]
	if nested := first.Children[len(first.Children)-1]; nested.Kind != doctree.KindItemList {
		t.Errorf("expected nested list at end of first item, got %v", nested.Kind)
	}

	table := tree.Root.Children[1]
	if table.Kind != doctree.KindTable || len(table.Children) != 2 {
		t.Fatalf("expected table with 2 rows, got %v with %d", table.Kind, len(table.Children))
	}
	if tag := table.Children[0].Children[0].TagName; tag != "th" {
		t.Errorf("expected header cell, got %q", tag)
	}
	if tag := table.Children[1].Children[1].TagName; tag != "td" {
		t.Errorf("expected data cell, got %q", tag)
	}
}

func TestMarkdownParser_Inline(t *testing.T) {
	input := "**bold** ~~gone~~ `code` [page](other.md#part) [site](https://example.com) ![pic](img/photo.png)\n"

	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "inline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := map[doctree.Kind]*doctree.Node{}
	doctree.Walk(tree.Root, func(n *doctree.Node) bool {
		if _, ok := found[n.Kind]; !ok {
			found[n.Kind] = n
		}
		return true
	})

	if s := found[doctree.KindStyle]; s == nil || s.Caption != doctree.StyleBold {
		t.Errorf("expected bold style first, got %+v", s)
	}
	if tag := found[doctree.KindTag]; tag == nil || tag.TagName != "code" {
		t.Errorf("expected code span, got %+v", tag)
	}
	if l := found[doctree.KindArticleLink]; l == nil || l.Target != "other#part" {
		t.Errorf("expected wiki link to other#part, got %+v", l)
	}
	if l := found[doctree.KindNamedURL]; l == nil || l.Target != "https://example.com" {
		t.Errorf("expected external link, got %+v", l)
	}
	if img := found[doctree.KindImageLink]; img == nil || img.Target != "File:photo.png" {
		t.Errorf("expected image in file namespace, got %+v", img)
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(""), "empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Root.Children) != 0 {
		t.Errorf("expected 0 children for empty input, got %d", len(tree.Root.Children))
	}
}
