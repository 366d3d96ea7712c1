package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	"golang.org/x/net/html"
)

var (
	bareURLRe     = regexp.MustCompile(`^(?:https?|ftps?|irc|news)://[^\s<>\[\]{}|"']+`)
	externalRe    = regexp.MustCompile(`^\[((?:(?:https?|ftps?|irc|news)://|mailto:|//)[^\s\]]+)(?:\s+([^\]\n]*))?\]`)
	imageSizeRe   = regexp.MustCompile(`^(\d*)(?:x(\d+))?\s*px$`)
	linkTrailRe   = regexp.MustCompile(`^[a-z]+`)
	imageKeywords = map[string]bool{
		"thumb": true, "thumbnail": true, "frame": true, "framed": true,
		"frameless": true, "border": true, "upright": true, "baseline": true,
		"middle": true, "sub": true, "super": true, "text-top": true,
		"text-bottom": true, "top": true, "bottom": true,
	}
)

// styleTags map HTML formatting tags onto style keys.
var styleTags = map[string]string{
	"b": doctree.StyleBold, "strong": doctree.StyleBold,
	"i": doctree.StyleItalic, "em": doctree.StyleItalic,
	"u": doctree.StyleUnderline, "ins": doctree.StyleUnderline,
	"s": doctree.StyleStrike, "strike": doctree.StyleStrike, "del": doctree.StyleStrike,
	"sub": doctree.StyleSub, "sup": doctree.StyleSup, "big": doctree.StyleBig,
	"blockquote": doctree.StyleBlockquote,
}

// containerTags become KindTag nodes around their content.
var containerTags = map[string]bool{
	"tt": true, "code": true, "ref": true, "references": true, "span": true,
	"small": true, "div": true, "center": true, "font": true, "p": true,
	"poem": true, "abbr": true, "cite": true, "var": true, "kbd": true,
	"samp": true,
}

type frame struct {
	node *doctree.Node
	key  string
}

// inlineParser turns one run of inline markup into nodes. Open styles and
// tags are frames on a stack; overlapping closes are repaired by closing
// and reopening the frames in between.
type inlineParser struct {
	doc   *document
	stack []frame
	buf   strings.Builder
}

func (d *document) inline(s string) []*doctree.Node {
	in := &inlineParser{doc: d, stack: []frame{{node: doctree.New(doctree.KindGeneric)}}}
	in.run(s)
	for len(in.stack) > 1 {
		in.pop()
	}
	in.flush()
	return in.stack[0].node.Children
}

func (in *inlineParser) top() *doctree.Node {
	return in.stack[len(in.stack)-1].node
}

func (in *inlineParser) flush() {
	if in.buf.Len() > 0 {
		in.top().Append(doctree.Text(in.buf.String()))
		in.buf.Reset()
	}
}

func (in *inlineParser) add(n *doctree.Node) {
	in.flush()
	in.top().Append(n)
}

func (in *inlineParser) open(key string, n *doctree.Node) {
	in.add(n)
	in.stack = append(in.stack, frame{node: n, key: key})
}

// pop closes the innermost frame, dropping it if nothing was written
// inside.
func (in *inlineParser) pop() {
	in.flush()
	f := in.stack[len(in.stack)-1]
	in.stack = in.stack[:len(in.stack)-1]
	if len(f.node.Children) == 0 {
		parent := in.top()
		if k := len(parent.Children); k > 0 && parent.Children[k-1] == f.node {
			parent.Children = parent.Children[:k-1]
		}
	}
}

func (in *inlineParser) find(key string) int {
	for i := len(in.stack) - 1; i > 0; i-- {
		if in.stack[i].key == key {
			return i
		}
	}
	return -1
}

// closeAt closes the frame at idx and everything above it, then reopens
// the frames above it for which reopen returns true.
func (in *inlineParser) closeAt(idx int, reopen func(frame) bool) {
	above := append([]frame(nil), in.stack[idx+1:]...)
	for len(in.stack) > idx {
		in.pop()
	}
	for _, f := range above {
		if reopen == nil || reopen(f) {
			in.open(f.key, &doctree.Node{Kind: f.node.Kind, Caption: f.node.Caption, TagName: f.node.TagName})
		}
	}
}

func (in *inlineParser) toggle(style string) {
	if idx := in.find(style); idx > 0 {
		in.closeAt(idx, nil)
		return
	}
	in.open(style, &doctree.Node{Kind: doctree.KindStyle, Caption: style})
}

func isQuoteFrame(f frame) bool {
	return f.key == doctree.StyleItalic || f.key == doctree.StyleBold
}

// endLine closes apostrophe styles, which never span lines.
func (in *inlineParser) endLine() {
	for i := 1; i < len(in.stack); i++ {
		if isQuoteFrame(in.stack[i]) {
			in.closeAt(i, func(f frame) bool { return !isQuoteFrame(f) })
			return
		}
	}
}

func (in *inlineParser) apostrophes(n int) {
	switch {
	case n == 2:
		in.toggle(doctree.StyleItalic)
	case n == 3:
		in.toggle(doctree.StyleBold)
	case n == 4:
		in.buf.WriteByte('\'')
		in.toggle(doctree.StyleBold)
	default:
		in.buf.WriteString(strings.Repeat("'", n-5))
		if in.find(doctree.StyleItalic) > in.find(doctree.StyleBold) {
			in.toggle(doctree.StyleItalic)
			in.toggle(doctree.StyleBold)
		} else {
			in.toggle(doctree.StyleBold)
			in.toggle(doctree.StyleItalic)
		}
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (in *inlineParser) run(s string) {
	for i := 0; i < len(s); {
		rest := s[i:]
		switch c := s[i]; {
		case c == '\n':
			in.endLine()
			in.buf.WriteByte('\n')
			i++
		case strings.HasPrefix(rest, "''"):
			n := 0
			for n < len(rest) && rest[n] == '\'' {
				n++
			}
			in.apostrophes(n)
			i += n
		case strings.HasPrefix(rest, "[["):
			end := matchClose(rest, "[[", "]]")
			if end < 0 {
				in.buf.WriteString("[[")
				i += 2
				continue
			}
			consumed := end + 2
			trail := ""
			if t := linkTrailRe.FindString(rest[consumed:]); t != "" {
				trail = t
			}
			node, usedTrail := in.doc.link(rest[2:end], trail)
			in.add(node)
			if usedTrail {
				consumed += len(trail)
			}
			i += consumed
		case c == '[':
			m := externalRe.FindStringSubmatch(rest)
			if m == nil {
				in.buf.WriteByte(c)
				i++
				continue
			}
			in.add(&doctree.Node{Kind: doctree.KindNamedURL, Target: m[1], Children: in.doc.inline(m[2])})
			i += len(m[0])
		case strings.HasPrefix(rest, "{{"):
			end := matchClose(rest, "{{", "}}")
			if end < 0 {
				in.buf.WriteString("{{")
				i += 2
				continue
			}
			body := rest[2:end]
			name, _, _ := strings.Cut(body, "|")
			in.add(&doctree.Node{Kind: doctree.KindTemplate, Caption: body, Target: strings.TrimSpace(name)})
			i += end + 2
		case c == '<':
			if n, ok := in.tag(rest); ok {
				i += n
				continue
			}
			in.buf.WriteByte(c)
			i++
		case strings.HasPrefix(rest, rawOpen):
			idx, n, ok := rawIndex(rest)
			if !ok || idx >= len(in.doc.raws) {
				in.buf.WriteString(rawOpen)
				i += len(rawOpen)
				continue
			}
			in.add(in.doc.rawNode(in.doc.raws[idx]))
			i += n
		case (i == 0 || !isWordByte(s[i-1])) && bareURLRe.MatchString(rest):
			url := strings.TrimRight(bareURLRe.FindString(rest), ".,;:!?)")
			in.add(&doctree.Node{Kind: doctree.KindURL, Target: url})
			i += len(url)
		default:
			in.buf.WriteByte(c)
			i++
		}
	}
}

// tag handles an HTML-like tag at the start of s and returns the number
// of bytes it consumed. Unknown tags are left as text.
func (in *inlineParser) tag(s string) (int, bool) {
	z := html.NewTokenizer(strings.NewReader(s))
	tt := z.Next()
	if tt != html.StartTagToken && tt != html.EndTagToken && tt != html.SelfClosingTagToken {
		return 0, false
	}
	raw := string(z.Raw())
	nameBytes, _ := z.TagName()
	name := string(nameBytes)

	switch {
	case name == "br":
		in.add(&doctree.Node{Kind: doctree.KindTag, TagName: name, Caption: raw})
	case name == "hr":
		in.add(doctree.New(doctree.KindHorizontalRule))
	case styleTags[name] != "":
		in.openOrClose(tt, "<"+name, &doctree.Node{Kind: doctree.KindStyle, Caption: styleTags[name]})
	case containerTags[name]:
		if tt == html.SelfClosingTagToken {
			// <ref name="x"/> reuses a footnote defined elsewhere.
			if name == "references" {
				in.add(&doctree.Node{Kind: doctree.KindTag, TagName: name})
			}
			break
		}
		in.openOrClose(tt, "<"+name, &doctree.Node{Kind: doctree.KindTag, TagName: name})
	default:
		return 0, false
	}
	return len(raw), true
}

func (in *inlineParser) openOrClose(tt html.TokenType, key string, n *doctree.Node) {
	switch tt {
	case html.StartTagToken:
		in.open(key, n)
	case html.EndTagToken:
		if idx := in.find(key); idx > 0 {
			in.closeAt(idx, nil)
		}
	}
}

// matchClose returns the index in s of the close delimiter balancing the
// open delimiter s starts with, or -1.
func matchClose(s, open, close string) int {
	depth := 0
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], open):
			depth++
			i += len(open)
		case strings.HasPrefix(s[i:], close):
			depth--
			if depth == 0 {
				return i
			}
			i += len(close)
		default:
			i++
		}
	}
	return -1
}

// link builds the node for the body of a [[...]] link. It reports whether
// the link trail (letters glued to the closing brackets) was absorbed.
func (d *document) link(body, trail string) (*doctree.Node, bool) {
	parts := splitTopLevel(body, "|")
	target := strings.TrimSpace(parts[0])
	forced := strings.HasPrefix(target, ":")
	target = strings.TrimPrefix(target, ":")

	switch {
	case !forced && d.resolver.IsFileNamespace(target):
		return d.image(target, parts[1:]), false
	case !forced && d.resolver.IsCategory(target):
		return &doctree.Node{Kind: doctree.KindCategoryLink, Target: target}, false
	case !forced && d.resolver.IsNamespace(target):
		caption := target
		if len(parts) > 1 {
			caption = strings.Join(parts[1:], "|")
		}
		return &doctree.Node{Kind: doctree.KindNamespaceLink, Target: target, Children: d.inline(caption)}, false
	}

	link := &doctree.Node{Kind: doctree.KindArticleLink, Target: target}
	switch {
	case len(parts) > 1 && strings.TrimSpace(strings.Join(parts[1:], "|")) != "":
		link.Children = d.inline(strings.Join(parts[1:], "|") + trail)
	case trail != "":
		link.Children = d.inline(target + trail)
	default:
		return link, false
	}
	return link, trail != ""
}

// image builds an image link from a file target and its | options. The
// last option that is not a size, alignment or keyword is the caption.
func (d *document) image(target string, opts []string) *doctree.Node {
	img := &doctree.Node{Kind: doctree.KindImageLink, Target: target}
	caption := ""
	for _, opt := range opts {
		o := strings.TrimSpace(opt)
		lower := strings.ToLower(o)
		if m := imageSizeRe.FindStringSubmatch(lower); m != nil {
			img.Width, _ = strconv.Atoi(m[1])
			img.Height, _ = strconv.Atoi(m[2])
			continue
		}
		switch {
		case lower == "left" || lower == "right" || lower == "center":
			img.Align = lower
		case lower == "centre":
			img.Align = "center"
		case lower == "none":
			img.Align = ""
		case imageKeywords[lower]:
		case isImageParam(lower):
		default:
			caption = o
		}
	}
	if caption != "" {
		img.Children = d.inline(caption)
	}
	return img
}

func isImageParam(opt string) bool {
	key, _, ok := strings.Cut(opt, "=")
	if !ok {
		return false
	}
	switch strings.TrimSpace(key) {
	case "link", "alt", "page", "class", "lang", "upright", "thumb", "thumbnail":
		return true
	}
	return false
}

// rawNode converts a lifted raw element.
func (d *document) rawNode(e rawElem) *doctree.Node {
	switch e.name {
	case "math":
		return &doctree.Node{Kind: doctree.KindMath, Caption: e.body}
	case "gallery":
		return d.gallery(e.body)
	default:
		return doctree.New(doctree.KindPreFormatted, doctree.Text(e.body))
	}
}

// gallery turns one "File:x.png|caption" entry per line into image links.
func (d *document) gallery(body string) *doctree.Node {
	g := &doctree.Node{Kind: doctree.KindTag, TagName: "gallery"}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := splitTopLevel(line, "|")
		target := strings.TrimSpace(parts[0])
		if !d.resolver.IsFileNamespace(target) {
			target = d.resolver.FileNamespace() + ":" + target
		}
		img := d.image(target, parts[1:])
		img.InGallery = true
		g.Append(img, doctree.Text("\n"))
	}
	return g
}
