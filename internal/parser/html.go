package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, title string) (*doctree.Tree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	tree := &doctree.Tree{Title: title, Root: doctree.New(doctree.KindArticle)}

	// Fall back to the <title> tag when the caller has no title.
	if tree.Title == "" {
		tree.Title = findTitle(doc)
	}

	b := &htmlBuilder{root: tree.Root}
	// Find <body> or use whole document.
	if body := findBody(doc); body != nil {
		b.block(body)
	} else {
		b.block(doc)
	}
	b.flush()

	return tree, nil
}

// htmlBuilder nests block content under headings. Loose inline content
// between blocks is gathered into implicit paragraphs.
type htmlBuilder struct {
	root     *doctree.Node
	sections []*doctree.Node
	pending  []*doctree.Node
}

func (b *htmlBuilder) add(n *doctree.Node) {
	if len(b.sections) == 0 {
		b.root.Append(n)
		return
	}
	b.sections[len(b.sections)-1].Append(n)
}

func (b *htmlBuilder) flush() {
	blank := true
	for _, n := range b.pending {
		if n.Kind != doctree.KindText || strings.TrimSpace(n.Caption) != "" {
			blank = false
			break
		}
	}
	if !blank {
		para := doctree.New(doctree.KindParagraph, b.pending...)
		b.add(para.Append(doctree.Text("\n")))
	}
	b.pending = nil
}

func (b *htmlBuilder) block(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.pending = append(b.pending, inlineHTML(c)...)
			continue
		}
		if c.Type != html.ElementNode {
			continue
		}

		if level := headingLevel(c.Data); level > 0 {
			b.flush()
			for len(b.sections) > 0 && b.sections[len(b.sections)-1].Level >= level {
				b.sections = b.sections[:len(b.sections)-1]
			}
			sec := &doctree.Node{Kind: doctree.KindSection, Level: level}
			sec.Append(doctree.New(doctree.KindGeneric, inlineChildren(c)...))
			b.add(sec)
			b.sections = append(b.sections, sec)
			continue
		}

		switch c.Data {
		// Skip non-content elements.
		case "script", "style", "nav", "footer", "header", "head":
		case "p":
			b.flush()
			b.pending = inlineChildren(c)
			b.flush()
		case "ul", "ol":
			b.flush()
			b.add(listHTML(c))
		case "pre":
			b.flush()
			b.add(doctree.New(doctree.KindPreFormatted, doctree.Text(strings.TrimPrefix(rawText(c), "\n"))))
		case "table":
			b.flush()
			b.add(tableHTML(c))
		case "hr":
			b.flush()
			b.add(doctree.New(doctree.KindHorizontalRule))
		case "blockquote":
			b.flush()
			quote := &doctree.Node{Kind: doctree.KindStyle, Caption: doctree.StyleBlockquote, Children: inlineChildren(c)}
			b.add(doctree.New(doctree.KindParagraph, quote, doctree.Text("\n")))
		case "div", "section", "article", "main", "body", "html", "center", "figure", "dl", "dd", "dt":
			b.flush()
			b.block(c)
		default:
			b.pending = append(b.pending, inlineHTML(c)...)
		}
	}
}

func inlineChildren(n *html.Node) []*doctree.Node {
	var out []*doctree.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, inlineHTML(c)...)
	}
	return out
}

func inlineHTML(n *html.Node) []*doctree.Node {
	switch n.Type {
	case html.TextNode:
		if s := collapseSpace(n.Data); s != "" {
			return []*doctree.Node{doctree.Text(s)}
		}
		return nil
	case html.ElementNode:
	default:
		return nil
	}

	switch n.Data {
	case "script", "style":
		return nil
	case "br":
		return []*doctree.Node{{Kind: doctree.KindTag, TagName: "br", Caption: "<br>"}}
	case "code", "tt", "kbd", "samp":
		return []*doctree.Node{{Kind: doctree.KindTag, TagName: "code", Children: inlineChildren(n)}}
	case "a":
		href := attr(n, "href")
		if href == "" {
			return inlineChildren(n)
		}
		return []*doctree.Node{hrefNode(href, inlineChildren(n))}
	case "img":
		src := attr(n, "src")
		if src == "" {
			return nil
		}
		var alt []*doctree.Node
		if a := attr(n, "alt"); a != "" {
			alt = []*doctree.Node{doctree.Text(a)}
		}
		return []*doctree.Node{imageNode(src, alt)}
	}
	if style, ok := styleTags[n.Data]; ok {
		return []*doctree.Node{{Kind: doctree.KindStyle, Caption: style, Children: inlineChildren(n)}}
	}
	return inlineChildren(n)
}

func listHTML(n *html.Node) *doctree.Node {
	list := &doctree.Node{Kind: doctree.KindItemList, Ordered: n.Data == "ol"}
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		item := doctree.New(doctree.KindItem)
		var nested []*doctree.Node
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol") {
				nested = append(nested, listHTML(c))
				continue
			}
			item.Append(inlineHTML(c)...)
		}
		item.Append(doctree.Text("\n"))
		list.Append(item.Append(nested...))
	}
	return list
}

func tableHTML(n *html.Node) *doctree.Node {
	table := doctree.New(doctree.KindTable)
	var rows func(*html.Node)
	rows = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "thead", "tbody", "tfoot":
				rows(c)
			case "tr":
				row := doctree.New(doctree.KindRow)
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.Data == "th" || cell.Data == "td") {
						row.Append(&doctree.Node{Kind: doctree.KindCell, TagName: cell.Data, Children: inlineChildren(cell)})
					}
				}
				if len(row.Children) > 0 {
					table.Append(row)
				}
			}
		}
	}
	rows(n)
	return table
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// collapseSpace folds HTML whitespace runs to one space, keeping a single
// space at either edge when there was one.
func collapseSpace(s string) string {
	if strings.TrimSpace(s) == "" {
		if s == "" {
			return ""
		}
		return " "
	}
	out := strings.Join(strings.Fields(s), " ")
	if strings.IndexAny(s[:1], " \t\r\n") == 0 {
		out = " " + out
	}
	if strings.IndexAny(s[len(s)-1:], " \t\r\n") == 0 {
		out += " "
	}
	return out
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

// rawText returns the text content of n with whitespace preserved.
func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return strings.TrimSpace(rawText(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
