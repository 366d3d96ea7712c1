package parser

import (
	"bytes"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	"github.com/dgallion1/wikiport/internal/names"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, title string) (*doctree.Tree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	doc := md.Parser().Parse(text.NewReader(src))

	tree := &doctree.Tree{Title: title, Root: doctree.New(doctree.KindArticle)}

	// Walk the top-level blocks and nest content under headings.
	// We use a stack to track the current section.
	var stack []*doctree.Node
	add := func(n *doctree.Node) {
		if n == nil {
			return
		}
		if len(stack) == 0 {
			tree.Root.Append(n)
			return
		}
		stack[len(stack)-1].Append(n)
	}

	m := &mdConverter{src: src}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			add(m.block(n))
			continue
		}

		// Pop stack until we find a parent with lower level.
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		sec := &doctree.Node{Kind: doctree.KindSection, Level: h.Level}
		sec.Append(doctree.New(doctree.KindGeneric, m.inlines(h)...))
		add(sec)
		stack = append(stack, sec)
	}

	return tree, nil
}

type mdConverter struct {
	src []byte
}

func (m *mdConverter) block(n ast.Node) *doctree.Node {
	switch node := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		para := doctree.New(doctree.KindParagraph, m.inlines(node)...)
		return para.Append(doctree.Text("\n"))
	case *ast.List:
		list := &doctree.Node{Kind: doctree.KindItemList, Ordered: node.IsOrdered()}
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			list.Append(m.item(c))
		}
		return list
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return doctree.New(doctree.KindPreFormatted, doctree.Text(m.lines(node)))
	case *ast.HTMLBlock:
		return doctree.New(doctree.KindParagraph, doctree.Text(m.lines(node)), doctree.Text("\n"))
	case *ast.ThematicBreak:
		return doctree.New(doctree.KindHorizontalRule)
	case *ast.Blockquote:
		quote := &doctree.Node{Kind: doctree.KindStyle, Caption: doctree.StyleBlockquote}
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if len(quote.Children) > 0 {
				quote.Append(doctree.Text(" "))
			}
			quote.Append(m.inlines(c)...)
		}
		return doctree.New(doctree.KindParagraph, quote, doctree.Text("\n"))
	case *east.Table:
		table := doctree.New(doctree.KindTable)
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			table.Append(m.row(c))
		}
		return table
	default:
		return doctree.New(doctree.KindGeneric, m.inlines(node)...)
	}
}

// item renders a list item: inline text on the first line, nested lists
// after it.
func (m *mdConverter) item(n ast.Node) *doctree.Node {
	item := doctree.New(doctree.KindItem)
	var nested []*doctree.Node
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if l, ok := c.(*ast.List); ok {
			nested = append(nested, m.block(l))
			continue
		}
		if len(item.Children) > 0 {
			item.Append(doctree.Text(" "))
		}
		item.Append(m.inlines(c)...)
	}
	item.Append(doctree.Text("\n"))
	return item.Append(nested...)
}

func (m *mdConverter) row(n ast.Node) *doctree.Node {
	tag := "td"
	if _, ok := n.(*east.TableHeader); ok {
		tag = "th"
	}
	row := doctree.New(doctree.KindRow)
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		row.Append(&doctree.Node{Kind: doctree.KindCell, TagName: tag, Children: m.inlines(c)})
	}
	return row
}

func (m *mdConverter) lines(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(m.src))
	}
	return buf.String()
}

func (m *mdConverter) inlines(n ast.Node) []*doctree.Node {
	var out []*doctree.Node
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, m.inline(c)...)
	}
	return out
}

func (m *mdConverter) inline(n ast.Node) []*doctree.Node {
	switch node := n.(type) {
	case *ast.Text:
		out := []*doctree.Node{doctree.Text(string(node.Value(m.src)))}
		switch {
		case node.HardLineBreak():
			out = append(out, &doctree.Node{Kind: doctree.KindTag, TagName: "br", Caption: "<br>"})
		case node.SoftLineBreak():
			out = append(out, doctree.Text("\n"))
		}
		return out
	case *ast.String:
		return []*doctree.Node{doctree.Text(string(node.Value))}
	case *ast.Emphasis:
		style := doctree.StyleItalic
		if node.Level >= 2 {
			style = doctree.StyleBold
		}
		return []*doctree.Node{{Kind: doctree.KindStyle, Caption: style, Children: m.inlines(node)}}
	case *east.Strikethrough:
		return []*doctree.Node{{Kind: doctree.KindStyle, Caption: doctree.StyleStrike, Children: m.inlines(node)}}
	case *ast.CodeSpan:
		return []*doctree.Node{{Kind: doctree.KindTag, TagName: "code", Children: m.inlines(node)}}
	case *ast.AutoLink:
		return []*doctree.Node{{Kind: doctree.KindURL, Target: string(node.URL(m.src))}}
	case *ast.Link:
		return []*doctree.Node{hrefNode(string(node.Destination), m.inlines(node))}
	case *ast.Image:
		return []*doctree.Node{imageNode(string(node.Destination), m.inlines(node))}
	case *ast.RawHTML:
		var buf bytes.Buffer
		for i := 0; i < node.Segments.Len(); i++ {
			seg := node.Segments.At(i)
			buf.Write(seg.Value(m.src))
		}
		raw := buf.String()
		if strings.HasPrefix(strings.ToLower(raw), "<br") {
			return []*doctree.Node{{Kind: doctree.KindTag, TagName: "br", Caption: raw}}
		}
		return []*doctree.Node{doctree.Text(raw)}
	default:
		return m.inlines(node)
	}
}

func isAbsoluteURL(dest string) bool {
	u, err := url.Parse(dest)
	return err == nil && (u.Scheme != "" || strings.HasPrefix(dest, "//"))
}

// hrefNode maps a hyperlink: absolute URLs stay external, relative ones
// become wiki links to the page they name.
func hrefNode(dest string, caption []*doctree.Node) *doctree.Node {
	if isAbsoluteURL(dest) {
		return &doctree.Node{Kind: doctree.KindNamedURL, Target: dest, Children: caption}
	}
	page, anchor, _ := strings.Cut(dest, "#")
	page = strings.TrimSuffix(page, path.Ext(page))
	target := page
	if anchor != "" {
		target += "#" + anchor
	}
	return &doctree.Node{Kind: doctree.KindArticleLink, Target: target, Children: caption}
}

// imageNode maps an embedded image. Local files land in the file
// namespace under their base name.
func imageNode(src string, alt []*doctree.Node) *doctree.Node {
	if isAbsoluteURL(src) {
		return &doctree.Node{Kind: doctree.KindNamedURL, Target: src, Children: alt}
	}
	return &doctree.Node{Kind: doctree.KindImageLink, Target: names.DefaultFileNamespace + ":" + path.Base(src)}
}
