package parser

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	"github.com/dgallion1/wikiport/internal/names"
)

var (
	headingRe   = regexp.MustCompile(`^(={1,6})(.+?)(={1,6})\s*$`)
	hrRe        = regexp.MustCompile(`^-{4,}`)
	magicWordRe = regexp.MustCompile(`__[A-Z]+__`)
	redirectRe  = regexp.MustCompile(`(?i)^\s*#redirect\s*:?\s*`)
)

// WikitextParser handles MediaWiki markup.
type WikitextParser struct {
	resolver *names.Resolver
}

// NewWikitextParser returns a parser that classifies link prefixes with
// resolver. A nil resolver means the defaults.
func NewWikitextParser(resolver *names.Resolver) *WikitextParser {
	if resolver == nil {
		resolver = names.DefaultResolver()
	}
	return &WikitextParser{resolver: resolver}
}

func (p *WikitextParser) Parse(r io.Reader, title string) (*doctree.Tree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read wikitext: %w", err)
	}
	return p.ParseString(string(src), title), nil
}

// ParseString parses markup held in memory. It never fails: markup it
// does not understand is kept as text.
func (p *WikitextParser) ParseString(src, title string) *doctree.Tree {
	text, verbatim := ExtractVerbatim(strings.ReplaceAll(src, "\r\n", "\n"))
	text = redirectRe.ReplaceAllString(text, "")
	text = magicWordRe.ReplaceAllString(text, "")
	text, raws := extractRaw(text)

	b := &blockParser{
		doc:  &document{resolver: p.resolver, raws: raws},
		root: doctree.New(doctree.KindArticle),
	}
	b.parse(strings.Split(text, "\n"))

	return &doctree.Tree{Title: title, Root: b.root, Verbatim: verbatim}
}

// document is the per-parse state shared by the block and inline passes.
type document struct {
	resolver *names.Resolver
	raws     []rawElem
}

type blockParser struct {
	doc      *document
	root     *doctree.Node
	sections []*doctree.Node
	para     []string
}

func (b *blockParser) container() *doctree.Node {
	if len(b.sections) > 0 {
		return b.sections[len(b.sections)-1]
	}
	return b.root
}

func (b *blockParser) add(n *doctree.Node) {
	c := b.container()
	c.Children = append(c.Children, n)
}

func (b *blockParser) parse(lines []string) {
	for i := 0; i < len(lines); {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			b.flush()
			i++
		case headingRe.MatchString(trimmed):
			b.flush()
			b.heading(headingRe.FindStringSubmatch(trimmed))
			i++
		case hrRe.MatchString(trimmed):
			b.flush()
			b.add(doctree.New(doctree.KindHorizontalRule))
			if rest := strings.TrimSpace(strings.TrimLeft(trimmed, "-")); rest != "" {
				b.para = append(b.para, rest)
			}
			i++
		case strings.HasPrefix(trimmed, "{|"):
			b.flush()
			var table *doctree.Node
			table, i = b.table(lines, i)
			b.add(table)
		case isListLine(line):
			b.flush()
			i = b.list(lines, i)
		case isDefinitionLine(line):
			b.flush()
			i = b.definitions(lines, i)
		case b.rawLine(trimmed) != nil:
			b.flush()
			b.add(b.rawLine(trimmed))
			i++
		case line[0] == ' ' || line[0] == '\t':
			b.flush()
			i = b.preformatted(lines, i)
		default:
			b.para = append(b.para, line)
			i++
		}
	}
	b.flush()
}

// flush closes the pending paragraph. Paragraph text keeps its final line
// break so consecutive paragraphs stay separated by a blank line.
func (b *blockParser) flush() {
	if len(b.para) == 0 {
		return
	}
	text := strings.Join(b.para, "\n") + "\n"
	b.para = b.para[:0]
	b.add(doctree.New(doctree.KindParagraph, b.doc.inline(text)...))
}

func (b *blockParser) heading(m []string) {
	open, caption, close := m[1], m[2], m[3]
	level := min(len(open), len(close))
	// Unbalanced markers keep the surplus as part of the caption.
	caption = strings.Repeat("=", len(open)-level) + caption + strings.Repeat("=", len(close)-level)

	for len(b.sections) > 0 && b.sections[len(b.sections)-1].Level >= level {
		b.sections = b.sections[:len(b.sections)-1]
	}
	sec := &doctree.Node{Kind: doctree.KindSection, Level: level}
	sec.Append(doctree.New(doctree.KindGeneric, b.doc.inline(strings.TrimSpace(caption))...))
	b.add(sec)
	b.sections = append(b.sections, sec)
}

// rawLine returns the block for a line holding nothing but a raw element
// marker, or nil.
func (b *blockParser) rawLine(trimmed string) *doctree.Node {
	idx, n, ok := rawIndex(trimmed)
	if !ok || n != len(trimmed) || idx >= len(b.doc.raws) {
		return nil
	}
	return b.doc.rawNode(b.doc.raws[idx])
}

func (b *blockParser) preformatted(lines []string, i int) int {
	var body []string
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" || (line[0] != ' ' && line[0] != '\t') || strings.TrimSpace(line) == "" {
			break
		}
		body = append(body, line[1:])
	}
	text := strings.Join(body, "\n") + "\n"
	b.add(doctree.New(doctree.KindPreFormatted, b.doc.inline(text)...))
	return i
}

func listPrefix(line string) string {
	n := 0
	for n < len(line) && strings.IndexByte("*#:;", line[n]) >= 0 {
		n++
	}
	return line[:n]
}

func isListLine(line string) bool {
	return strings.ContainsAny(listPrefix(line), "*#")
}

func isDefinitionLine(line string) bool {
	p := listPrefix(line)
	return p != "" && !strings.ContainsAny(p, "*#")
}

type openList struct {
	node   *doctree.Node
	marker byte
	item   *doctree.Node
	end    *doctree.Node // line break closing item's own text
}

// list consumes consecutive */# lines. Nested lists hang off the item
// they follow, or off the parent list when a level is skipped.
func (b *blockParser) list(lines []string, i int) int {
	var stack []*openList
	for ; i < len(lines) && isListLine(lines[i]); i++ {
		prefix := listPrefix(lines[i])
		content := strings.TrimSpace(lines[i][len(prefix):])

		var levels []byte
		for j := 0; j < len(prefix); j++ {
			if prefix[j] == '*' || prefix[j] == '#' {
				levels = append(levels, prefix[j])
			}
		}
		continuation := prefix[len(prefix)-1] == ':' || prefix[len(prefix)-1] == ';'

		k := 0
		for k < len(stack) && k < len(levels) && stack[k].marker == levels[k] {
			k++
		}
		stack = stack[:k]

		if continuation && k == len(levels) && k > 0 && stack[k-1].item != nil {
			stack[k-1].continueItem(append([]*doctree.Node{doctree.Text(`\\ `)}, b.doc.inline(content)...))
			continue
		}

		for len(stack) < len(levels) {
			l := &openList{
				node:   &doctree.Node{Kind: doctree.KindItemList, Ordered: levels[len(stack)] == '#'},
				marker: levels[len(stack)],
			}
			switch {
			case len(stack) == 0:
				b.add(l.node)
			case stack[len(stack)-1].item != nil:
				stack[len(stack)-1].item.Append(l.node)
			default:
				stack[len(stack)-1].node.Append(l.node)
			}
			stack = append(stack, l)
		}

		top := stack[len(stack)-1]
		top.item = doctree.New(doctree.KindItem, b.doc.inline(content)...)
		top.end = doctree.Text("\n")
		top.item.Append(top.end)
		top.node.Append(top.item)
	}
	return i
}

// continueItem splices a continuation line into the item's own text, ahead
// of any nested lists.
func (l *openList) continueItem(nodes []*doctree.Node) {
	c := l.item.Children
	for i, n := range c {
		if n == l.end {
			out := append(append(append([]*doctree.Node{}, c[:i]...), nodes...), c[i:]...)
			l.item.Children = out
			return
		}
	}
	l.item.Append(nodes...)
}

// definitions consumes ;term and :indent lines into one paragraph. A
// "; term : definition" line yields both parts.
func (b *blockParser) definitions(lines []string, i int) int {
	para := doctree.New(doctree.KindParagraph)
	for ; i < len(lines) && isDefinitionLine(lines[i]); i++ {
		prefix := listPrefix(lines[i])
		content := strings.TrimSpace(lines[i][len(prefix):])

		if prefix[len(prefix)-1] == ';' {
			term, def, ok := splitDefinition(content)
			para.Append(&doctree.Node{Kind: doctree.KindStyle, Caption: doctree.StyleDefinition,
				Children: b.doc.inline(strings.TrimSpace(term))}, doctree.Text("\n"))
			if ok {
				para.Append(&doctree.Node{Kind: doctree.KindStyle, Caption: doctree.StyleIndent,
					Children: b.doc.inline(strings.TrimSpace(def))}, doctree.Text("\n"))
			}
			continue
		}
		para.Append(&doctree.Node{Kind: doctree.KindStyle, Caption: doctree.StyleIndent,
			Children: b.doc.inline(content)}, doctree.Text("\n"))
	}
	b.add(para)
	return i
}

// splitDefinition splits "term : definition" at the first colon outside
// of links and templates.
func splitDefinition(s string) (string, string, bool) {
	parts := splitTopLevel(s, ":")
	if len(parts) < 2 {
		return s, "", false
	}
	return parts[0], strings.Join(parts[1:], ":"), true
}

// table consumes a {| ... |} block starting at lines[i] and returns the
// table with the index of the first line after it.
func (b *blockParser) table(lines []string, i int) (*doctree.Node, int) {
	table := doctree.New(doctree.KindTable)
	var row, cell *doctree.Node

	newRow := func() {
		row = doctree.New(doctree.KindRow)
		cell = nil
	}
	endRow := func() {
		if row != nil && len(row.Children) > 0 {
			table.Append(row)
		}
		row, cell = nil, nil
	}

	for i++; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(trimmed, "|}"):
			endRow()
			return table, i + 1
		case strings.HasPrefix(trimmed, "{|"):
			var nested *doctree.Node
			nested, i = b.table(lines, i)
			i--
			if cell != nil {
				cell.Append(nested)
			}
		case strings.HasPrefix(trimmed, "|-"):
			endRow()
			newRow()
		case strings.HasPrefix(trimmed, "|+"):
			caption := strings.TrimSpace(stripCellAttrs(trimmed[2:]))
			if caption != "" {
				b.add(doctree.New(doctree.KindParagraph, b.doc.inline(caption+"\n")...))
			}
		case strings.HasPrefix(trimmed, "!"), strings.HasPrefix(trimmed, "|"):
			if row == nil {
				newRow()
			}
			tag, sep := "td", "||"
			if trimmed[0] == '!' {
				tag, sep = "th", "!!"
			}
			for _, raw := range splitCells(trimmed[1:], sep) {
				cell = &doctree.Node{Kind: doctree.KindCell, TagName: tag,
					Children: b.doc.inline(strings.TrimSpace(stripCellAttrs(raw)))}
				row.Append(cell)
			}
		default:
			if cell != nil && trimmed != "" {
				cell.Append(doctree.Text(" "))
				cell.Append(b.doc.inline(trimmed)...)
			}
		}
	}
	endRow()
	return table, i
}

// splitCells splits a cell line on the dialect separator; header lines
// also accept "||".
func splitCells(s, sep string) []string {
	if sep == "!!" {
		var out []string
		for _, part := range splitTopLevel(s, "!!") {
			out = append(out, splitTopLevel(part, "||")...)
		}
		return out
	}
	return splitTopLevel(s, sep)
}

// stripCellAttrs drops a leading `attr="x" |` cell attribute section.
func stripCellAttrs(s string) string {
	parts := splitTopLevel(s, "|")
	if len(parts) < 2 {
		return s
	}
	return strings.Join(parts[1:], "|")
}

// splitTopLevel splits s on sep, ignoring separators nested inside [[ ]]
// or {{ }}.
func splitTopLevel(s, sep string) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "[[") || strings.HasPrefix(s[i:], "{{"):
			depth++
			i += 2
		case depth > 0 && (strings.HasPrefix(s[i:], "]]") || strings.HasPrefix(s[i:], "}}")):
			depth--
			i += 2
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[last:i])
			i += len(sep)
			last = i
		default:
			i++
		}
	}
	return append(parts, s[last:])
}
