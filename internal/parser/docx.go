package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles Word documents. Heading styles open sections, other
// paragraphs and tables keep their node kinds.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, title string) (*doctree.Tree, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc, err := docx.Parse(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	tree := &doctree.Tree{Title: title, Root: doctree.New(doctree.KindArticle)}
	var stack []*doctree.Node
	add := func(n *doctree.Node) {
		if len(stack) == 0 {
			tree.Root.Append(n)
			return
		}
		stack[len(stack)-1].Append(n)
	}

	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			text := docxParagraphText(it)
			if text == "" {
				continue
			}
			level := docxHeadingLevel(it)
			if level == 0 {
				add(doctree.New(doctree.KindParagraph, doctree.Text(literal(text)), doctree.Text("\n")))
				continue
			}
			for len(stack) > 0 && stack[len(stack)-1].Level >= level {
				stack = stack[:len(stack)-1]
			}
			sec := &doctree.Node{Kind: doctree.KindSection, Level: level}
			sec.Append(doctree.New(doctree.KindGeneric, doctree.Text(literal(text))))
			add(sec)
			stack = append(stack, sec)
		case *docx.Table:
			if t := docxTable(it); t != nil {
				add(t)
			}
		}
	}
	return tree, nil
}

// docxTable maps a Word table to table, row and cell nodes. Word has no
// header cells, so every cell is a data cell.
func docxTable(t *docx.Table) *doctree.Node {
	if len(t.TableRows) == 0 {
		return nil
	}
	table := doctree.New(doctree.KindTable)
	for _, tr := range t.TableRows {
		row := doctree.New(doctree.KindRow)
		for _, tc := range tr.TableCells {
			var parts []string
			for _, para := range tc.Paragraphs {
				if text := docxParagraphText(para); text != "" {
					parts = append(parts, text)
				}
			}
			row.Append(&doctree.Node{Kind: doctree.KindCell, TagName: "td",
				Children: []*doctree.Node{doctree.Text(literal(strings.Join(parts, " ")))}})
		}
		table.Append(row)
	}
	return table
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	level, ok := strings.CutPrefix(style, "heading")
	if !ok || len(level) != 1 || level[0] < '1' || level[0] > '6' {
		return 0
	}
	return int(level[0] - '0')
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			docxRunText(&buf, c)
		case *docx.Hyperlink:
			docxRunText(&buf, &c.Run)
		}
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

func docxRunText(buf *strings.Builder, run *docx.Run) {
	for _, rc := range run.Children {
		switch t := rc.(type) {
		case *docx.Text:
			buf.WriteString(t.Text)
		case *docx.Tab:
			buf.WriteByte(' ')
		}
	}
}

// dokuwikiTokens open DokuWiki markup when they appear in plain text.
var dokuwikiTokens = []string{"**", "//", "__", "''", "[[", "{{", "((", "<", "^", "|", "==", "%%", `\\`, "~~", "----"}

// literal wraps a line holding DokuWiki markup in %% so it renders
// as plain text.
func literal(s string) string {
	if strings.HasPrefix(s, ">") {
		return "%%" + s + "%%"
	}
	for _, tok := range dokuwikiTokens {
		if strings.Contains(s, tok) {
			return "%%" + strings.ReplaceAll(s, "%%", "% %") + "%%"
		}
	}
	return s
}
