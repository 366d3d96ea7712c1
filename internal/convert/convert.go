// Package convert renders a parsed MediaWiki document tree as DokuWiki
// markup.
package convert

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
	"github.com/dgallion1/wikiport/internal/names"
)

const (
	// maxHeadingLevel is the deepest MediaWiki heading; level 1 gets the
	// widest DokuWiki delimiter.
	maxHeadingLevel = 6
	minDelimiter    = 2

	// galleryThumb is the width given to gallery images without an
	// explicit size.
	galleryThumb = "?160"
)

type affix struct {
	prefix, suffix string
}

var styleAffixes = map[string]affix{
	doctree.StyleDefinition: {"**", `**\\`},
	doctree.StyleIndent:     {"", ""},
	doctree.StyleItalic:     {"//", "//"},
	doctree.StyleBold:       {"**", "**"},
	doctree.StyleSub:        {"<sub>", "</sub>"},
	doctree.StyleSup:        {"<sup>", "</sup>"},
	doctree.StyleBig:        {"**", "**"}, // no <big> in DokuWiki
	doctree.StyleBlockquote: {"> ", ""},
	doctree.StyleUnderline:  {"__", "__"},
	doctree.StyleStrike:     {"<del>", "</del>"},
}

var tagAffixes = map[string]affix{
	"tt":   {"''", "''"},
	"code": {"''", "''"},
	"ref":  {"((", "))"},
}

// Converter translates document trees. It holds no per-document state
// and is safe for concurrent use; all render state lives in Context.
type Converter struct {
	log      *slog.Logger
	resolver *names.Resolver
}

// NewConverter returns a converter that reports anomalies to log and
// resolves file namespaces with resolver (nil means the defaults).
func NewConverter(log *slog.Logger, resolver *names.Resolver) *Converter {
	if log == nil {
		log = slog.Default()
	}
	if resolver == nil {
		resolver = names.DefaultResolver()
	}
	return &Converter{log: log, resolver: resolver}
}

// Resolver returns the converter's namespace resolver.
func (c *Converter) Resolver() *names.Resolver {
	return c.resolver
}

// Convert renders n. precedingNewline reports whether the output emitted
// just before n ended with a line break.
func (c *Converter) Convert(n *doctree.Node, ctx *Context, precedingNewline bool) string {
	switch n.Kind {
	case doctree.KindArticle, doctree.KindGeneric, doctree.KindTable:
		return c.children(n.Children, ctx, precedingNewline)
	case doctree.KindParagraph:
		return c.children(n.Children, ctx, precedingNewline) + "\n"
	case doctree.KindText:
		return doctree.ExpandPlaceholders(n.Caption, ctx.verbatim)
	case doctree.KindSection:
		return c.section(n, ctx, precedingNewline)
	case doctree.KindStyle:
		return c.style(n, ctx)
	case doctree.KindNamedURL:
		caption := strings.Trim(c.children(n.Children, ctx, false), " ")
		if caption == "" {
			return n.Target
		}
		return fmt.Sprintf("[[%s|%s]]", n.Target, caption)
	case doctree.KindURL:
		return n.Target
	case doctree.KindArticleLink:
		caption := strings.Trim(c.children(n.Children, ctx, false), " ")
		target := internalLink(n.Target)
		if caption == "" {
			return fmt.Sprintf("[[%s]]", target)
		}
		return fmt.Sprintf("[[%s|%s]]", target, caption)
	case doctree.KindCategoryLink:
		return ""
	case doctree.KindNamespaceLink:
		return c.namespaceLink(n, ctx)
	case doctree.KindImageLink:
		return imageLink(n, ctx)
	case doctree.KindItemList:
		ctx.pushList(n.Ordered)
		out := c.children(n.Children, ctx, precedingNewline)
		ctx.popList()
		return out
	case doctree.KindItem:
		depth := max(ctx.ListDepth(), 1)
		prefix := strings.Repeat("  ", depth) + ctx.listMarker() + " "
		return prefix + strings.TrimLeft(c.children(n.Children, ctx, false), " ")
	case doctree.KindRow:
		return c.row(n, ctx)
	case doctree.KindCell:
		marker := "|"
		if n.TagName == "th" {
			marker = "^"
		}
		body := strings.TrimSpace(strings.ReplaceAll(c.children(n.Children, ctx, false), "\n", " "))
		return marker + " " + body + " "
	case doctree.KindPreFormatted:
		return c.preformatted(n, ctx, precedingNewline)
	case doctree.KindTag:
		return c.tag(n, ctx)
	case doctree.KindMath:
		return formula(n.Caption)
	case doctree.KindHorizontalRule:
		if precedingNewline {
			return "----\n"
		}
		return "\n----\n"
	default:
		c.warn(ctx, "unsupported node type", "kind", n.Kind.String())
		return c.children(n.Children, ctx, precedingNewline)
	}
}

// children converts nodes in order, telling each one whether the text
// produced so far ends in a newline. nl is that state before the first
// child.
func (c *Converter) children(nodes []*doctree.Node, ctx *Context, nl bool) string {
	var sb strings.Builder
	for _, child := range nodes {
		out := c.Convert(child, ctx, nl)
		sb.WriteString(out)
		if out != "" {
			nl = strings.HasSuffix(out, "\n")
		}
	}
	return sb.String()
}

func (c *Converter) section(n *doctree.Node, ctx *Context, precedingNewline bool) string {
	if len(n.Children) == 0 {
		return ""
	}
	heading := strings.TrimSpace(c.Convert(n.Children[0], ctx, precedingNewline))

	level := min(max(n.Level, 1), maxHeadingLevel)
	delim := strings.Repeat("=", max(maxHeadingLevel+1-level, minDelimiter))
	return fmt.Sprintf("\n%s %s %s\n", delim, heading, delim) + c.children(n.Children[1:], ctx, true)
}

func (c *Converter) style(n *doctree.Node, ctx *Context) string {
	a, ok := styleAffixes[n.Caption]
	if !ok {
		c.warn(ctx, "ignoring unknown style", "style", n.Caption)
	}
	return a.prefix + c.children(n.Children, ctx, false) + a.suffix
}

func (c *Converter) namespaceLink(n *doctree.Node, ctx *Context) string {
	if !ctx.Resolver.IsFileNamespace(n.Target) {
		c.warn(ctx, "ignoring namespace link", "target", n.Target)
		return c.children(n.Children, ctx, false)
	}
	filename := names.NormalizeName(ctx.Resolver.CanonicalizeFileNamespace(n.Target))
	caption := strings.TrimSpace(c.children(n.Children, ctx, false))
	if caption == "" {
		return fmt.Sprintf("{{%s}}", filename)
	}
	return fmt.Sprintf("{{%s|%s}}", filename, caption)
}

func imageLink(n *doctree.Node, ctx *Context) string {
	suffix := ""
	switch {
	case n.Width > 0 && n.Height > 0:
		suffix = fmt.Sprintf("?%dx%d", n.Width, n.Height)
	case n.Width > 0:
		suffix = fmt.Sprintf("?%d", n.Width)
	case n.InGallery:
		suffix = galleryThumb
	}

	pre, post := "", ""
	switch n.Align {
	case "center":
		pre, post = " ", " "
	case "left":
		post = " "
	case "right":
		pre = " "
	}
	target := internalLink(ctx.Resolver.CanonicalizeFileNamespace(n.Target))
	return fmt.Sprintf("{{%s%s%s%s}}", pre, target, suffix, post)
}

func (c *Converter) row(n *doctree.Node, ctx *Context) string {
	term := "|"
	if k := len(n.Children); k > 0 && n.Children[k-1].Kind == doctree.KindCell && n.Children[k-1].TagName == "th" {
		term = "^"
	}
	return c.children(n.Children, ctx, false) + term + "\n"
}

// preformatted uses the two-space code block only when it starts a line
// outside of a list; list items are themselves indented, so anywhere
// else the block becomes a <code> span.
func (c *Converter) preformatted(n *doctree.Node, ctx *Context, precedingNewline bool) string {
	body := c.children(n.Children, ctx, false)
	if !precedingNewline || ctx.ListDepth() > 0 {
		return "<code>" + body + "</code>"
	}
	out := "  " + strings.TrimRight(strings.ReplaceAll(body, "\n", "\n  "), " ")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

func (c *Converter) tag(n *doctree.Node, ctx *Context) string {
	if n.Caption != "" {
		if strings.NewReplacer(" ", "", "/", "").Replace(strings.ToLower(n.Caption)) == "<br>" {
			return "\n"
		}
		return n.Caption
	}
	if a, ok := tagAffixes[n.TagName]; ok {
		return a.prefix + c.children(n.Children, ctx, false) + a.suffix
	}
	if n.TagName == "references" {
		c.warn(ctx, "dropping references list", "tag", n.TagName)
		return ""
	}
	return c.children(n.Children, ctx, false)
}

func formula(tex string) string {
	tex = strings.TrimSpace(tex)
	if strings.Contains(tex, "\n") {
		return "$$\n" + tex + "\n$$\n"
	}
	return "$" + tex + "$"
}

// internalLink normalizes a page target and its optional #anchor.
func internalLink(target string) string {
	page, anchor, hasAnchor := strings.Cut(target, "#")
	out := names.NormalizeName(page)
	if hasAnchor && anchor != "" {
		out += "#" + names.HeadingID(anchor)
	}
	return out
}

func (c *Converter) warn(ctx *Context, msg string, args ...any) {
	ctx.warnings++
	c.log.Warn(msg, append([]any{"title", ctx.Title}, args...)...)
}
