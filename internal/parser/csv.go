package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
)

// CSVParser turns a CSV file into a single table whose first record is
// the header row.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, title string) (*doctree.Tree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.Tree{Title: title, Root: doctree.New(doctree.KindArticle)}
	if len(records) == 0 {
		return tree, nil
	}

	table := doctree.New(doctree.KindTable)
	for i, record := range records {
		tag := "td"
		if i == 0 {
			tag = "th"
		}
		row := doctree.New(doctree.KindRow)
		for _, field := range record {
			row.Append(&doctree.Node{Kind: doctree.KindCell, TagName: tag, Children: []*doctree.Node{doctree.Text(csvCell(field))}})
		}
		table.Append(row)
	}
	tree.Root.Append(table)
	return tree, nil
}

// csvCell keeps a field on one line and stops it from closing the cell.
func csvCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if strings.ContainsAny(s, "|^") {
		return "%%" + s + "%%"
	}
	return s
}
