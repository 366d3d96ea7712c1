package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/wikiport/internal/doctree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLParser_Structure(t *testing.T) {
	input := `<html><head><title>Saved Page</title><style>p{}</style></head><body>
<nav>menu</nav>
<h1>Top</h1>
<p>Intro <b>bold</b> and <a href="Other_Page.html">link</a>.</p>
<h2>Lists</h2>
<ul><li>one<ul><li>nested</li></ul></li><li>two</li></ul>
<pre>
  code
</pre>
<table><tr><th>H</th></tr><tr><td>D</td></tr></table>
loose text
</body></html>`

	tree, err := (&HTMLParser{}).Parse(strings.NewReader(input), "")
	require.NoError(t, err)
	assert.Equal(t, "Saved Page", tree.Title)

	top := sections(tree.Root)
	require.Len(t, top, 1)
	assert.Equal(t, "Top", headingText(top[0]))
	assert.NotContains(t, plainText(tree.Root), "menu")

	h2 := sections(top[0])
	require.Len(t, h2, 1)
	var got []doctree.Kind
	for _, c := range h2[0].Children[1:] {
		got = append(got, c.Kind)
	}
	assert.Equal(t, []doctree.Kind{doctree.KindItemList, doctree.KindPreFormatted, doctree.KindTable, doctree.KindParagraph}, got)

	list := h2[0].Children[1]
	require.Len(t, list.Children, 2)
	first := list.Children[0]
	assert.Equal(t, doctree.KindItemList, first.Children[len(first.Children)-1].Kind)

	assert.Equal(t, "  code\n", plainText(h2[0].Children[2]))
	assert.Equal(t, " loose text ", plainText(h2[0].Children[4].Children[0]))

	var link *doctree.Node
	doctree.Walk(tree.Root, func(n *doctree.Node) bool {
		if n.Kind == doctree.KindArticleLink {
			link = n
		}
		return true
	})
	require.NotNil(t, link)
	assert.Equal(t, "Other_Page", link.Target)
}

func TestHTMLParser_CallerTitleWins(t *testing.T) {
	tree, err := (&HTMLParser{}).Parse(strings.NewReader("<title>Ignored</title><p>x</p>"), "Given")
	require.NoError(t, err)
	assert.Equal(t, "Given", tree.Title)
	require.Len(t, tree.Root.Children, 1)
	assert.Equal(t, doctree.KindParagraph, tree.Root.Children[0].Kind)
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "", collapseSpace(""))
	assert.Equal(t, " ", collapseSpace("\n  \t"))
	assert.Equal(t, "a b", collapseSpace("a \n b"))
	assert.Equal(t, " a b ", collapseSpace("  a b\n"))
}
