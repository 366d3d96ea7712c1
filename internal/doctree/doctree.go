package doctree

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind tags one variant of a parsed document node.
type Kind int

const (
	KindUnknown Kind = iota
	KindArticle
	KindGeneric // Plain container, e.g. a heading caption.
	KindParagraph
	KindText
	KindSection
	KindStyle
	KindNamedURL
	KindURL
	KindArticleLink
	KindCategoryLink
	KindNamespaceLink
	KindImageLink
	KindItemList
	KindItem
	KindTable
	KindRow
	KindCell
	KindPreFormatted
	KindTag
	KindMath
	KindHorizontalRule
	KindTemplate
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindArticle:        "article",
	KindGeneric:        "node",
	KindParagraph:      "paragraph",
	KindText:           "text",
	KindSection:        "section",
	KindStyle:          "style",
	KindNamedURL:       "named_url",
	KindURL:            "url",
	KindArticleLink:    "article_link",
	KindCategoryLink:   "category_link",
	KindNamespaceLink:  "namespace_link",
	KindImageLink:      "image_link",
	KindItemList:       "item_list",
	KindItem:           "item",
	KindTable:          "table",
	KindRow:            "row",
	KindCell:           "cell",
	KindPreFormatted:   "preformatted",
	KindTag:            "tag",
	KindMath:           "math",
	KindHorizontalRule: "horizontal_rule",
	KindTemplate:       "template",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Style keys carried by KindStyle nodes in Node.Caption.
const (
	StyleDefinition = ";"
	StyleIndent     = ":"
	StyleItalic     = "''"
	StyleBold       = "'''"
	StyleSub        = "sub"
	StyleSup        = "sup"
	StyleBig        = "big"
	StyleBlockquote = "blockquote"
	StyleUnderline  = "u"
	StyleStrike     = "s"
)

// Node is one element of a DocumentTree. Which attribute fields are
// meaningful depends on Kind.
type Node struct {
	Kind     Kind
	Children []*Node

	Caption string // Text content, style key, URL or raw tag text.
	Target  string // Link target.
	TagName string // Tag name for KindTag, "th"/"td" for KindCell.
	Level   int    // Heading level, 1 = top.
	Ordered bool   // KindItemList: numbered list.

	// Image attributes. Zero width/height means unset.
	Width     int
	Height    int
	Align     string
	InGallery bool
}

// Tree is the parse result for one markup string.
type Tree struct {
	Title string
	Root  *Node

	// Verbatim holds the regions replaced by placeholders before parsing,
	// indexed by placeholder number.
	Verbatim []string
}

// New returns a node of kind k holding children.
func New(k Kind, children ...*Node) *Node {
	return &Node{Kind: k, Children: children}
}

// Text returns a literal text node.
func Text(s string) *Node {
	return &Node{Kind: KindText, Caption: s}
}

// Append adds children to n and returns n.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// Walk visits n and its descendants depth first, stopping early if fn
// returns false for a node (its children are then skipped).
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
}

// Placeholders use private-use code points so no source markup can
// produce or disturb them.
const (
	placeholderOpen  = "\uE000"
	placeholderClose = "\uE001"
)

var placeholderRe = regexp.MustCompile(placeholderOpen + `(\d+)` + placeholderClose)

// Placeholder returns the marker standing in for verbatim block i.
func Placeholder(i int) string {
	return placeholderOpen + strconv.Itoa(i) + placeholderClose
}

// ExpandPlaceholders replaces every placeholder in s with its captured
// block. Markers with no matching block are dropped.
func ExpandPlaceholders(s string, blocks []string) string {
	if !HasPlaceholder(s) {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		idx, err := strconv.Atoi(m[len(placeholderOpen) : len(m)-len(placeholderClose)])
		if err != nil || idx < 0 || idx >= len(blocks) {
			return ""
		}
		return blocks[idx]
	})
}

// HasPlaceholder reports whether s contains a verbatim marker.
func HasPlaceholder(s string) bool {
	return placeholderRe.MatchString(s)
}
