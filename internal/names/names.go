// Package names maps MediaWiki titles, anchors and namespaces onto the
// DokuWiki naming conventions.
package names

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultFileNamespace is the canonical DokuWiki namespace that every
// MediaWiki file alias is rewritten to.
const DefaultFileNamespace = "File"

// DefaultFileAliases are the file namespace names every MediaWiki
// installation understands regardless of content language.
var DefaultFileAliases = []string{"File", "Image"}

var (
	camelRe       = regexp.MustCompile(`([\p{Ll}\p{Nd}])(\p{Lu})`)
	pageIllegalRe = regexp.MustCompile(`[^\p{L}\p{N}_/:]+`)
	anyIllegalRe  = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	anchorPunctRe = regexp.MustCompile(`[:.]`)
	nonDigitRe    = regexp.MustCompile(`[^0-9]+`)
)

// Resolver canonicalizes file namespaces and recognizes other namespace
// prefixes. It is immutable after construction and safe to share.
type Resolver struct {
	fileNamespace string
	fileAliases   map[string]bool
	namespaces    map[string]bool
}

// NewResolver builds a resolver for the canonical file namespace and its
// aliases. Aliases are matched case-insensitively; the canonical name is
// always an alias of itself. Extra namespaces are the site's other
// namespace names (Talk, User, Help, ...).
func NewResolver(fileNamespace string, aliases []string, namespaces ...string) *Resolver {
	if fileNamespace == "" {
		fileNamespace = DefaultFileNamespace
	}
	r := &Resolver{
		fileNamespace: fileNamespace,
		fileAliases:   map[string]bool{foldNamespace(fileNamespace): true},
		namespaces:    map[string]bool{},
	}
	for _, a := range aliases {
		if a = strings.TrimSpace(a); a != "" {
			r.fileAliases[foldNamespace(a)] = true
		}
	}
	for _, ns := range namespaces {
		if ns = strings.TrimSpace(ns); ns != "" {
			r.namespaces[foldNamespace(ns)] = true
		}
	}
	return r
}

// DefaultNamespaces are the English names of MediaWiki's built-in
// namespaces other than File.
var DefaultNamespaces = []string{
	"Talk", "User", "User talk", "Project", "Project talk", "File talk",
	"MediaWiki", "MediaWiki talk", "Template", "Template talk", "Help",
	"Help talk", "Category", "Category talk", "Special", "Media",
}

// DefaultResolver returns a resolver with the stock File/Image aliases
// and the English default namespaces.
func DefaultResolver() *Resolver {
	return NewResolver(DefaultFileNamespace, DefaultFileAliases, DefaultNamespaces...)
}

// FileNamespace returns the canonical file namespace name.
func (r *Resolver) FileNamespace() string {
	return r.fileNamespace
}

// foldNamespace makes "User_talk", "user talk" and "USER TALK" compare
// equal.
func foldNamespace(ns string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(ns, "_", " ")))
}

func prefixOf(target string) (string, bool) {
	i := strings.Index(target, ":")
	if i <= 0 {
		return "", false
	}
	return foldNamespace(target[:i]), true
}

// IsFileNamespace reports whether target starts with a known file
// namespace alias followed by a colon.
func (r *Resolver) IsFileNamespace(target string) bool {
	p, ok := prefixOf(target)
	return ok && r.fileAliases[p]
}

// IsCategory reports whether target is in the Category namespace.
func (r *Resolver) IsCategory(target string) bool {
	p, ok := prefixOf(target)
	return ok && p == "category"
}

// IsNamespace reports whether target starts with any namespace the
// resolver knows, file aliases included.
func (r *Resolver) IsNamespace(target string) bool {
	p, ok := prefixOf(target)
	if !ok {
		return false
	}
	return r.namespaces[p] || r.IsFileNamespace(target)
}

// CanonicalizeFileNamespace rewrites a file alias prefix to the
// canonical file namespace. Other targets are returned unchanged.
func (r *Resolver) CanonicalizeFileNamespace(target string) string {
	if !r.IsFileNamespace(target) {
		return target
	}
	return r.fileNamespace + target[strings.Index(target, ":"):]
}

type options struct {
	keepSeparators bool // "/" and ":" survive as namespace separators
	keepCase       bool
	splitCamel     bool
	splitExt       bool
}

// NormalizeName converts a MediaWiki title into a DokuWiki page or media
// id: "Foo Bar/CamelCase Page" becomes "foo_bar:camel_case_page".
func NormalizeName(raw string) string {
	name := normalize(raw, options{keepSeparators: true, splitCamel: true, splitExt: true})
	name = strings.ReplaceAll(name, "/", ":")

	segs := strings.Split(name, ":")
	out := segs[:0]
	for _, s := range segs {
		if s = strings.Trim(s, "_"); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ":")
}

// CleanUser converts a MediaWiki user name into a DokuWiki authplain
// login.
func CleanUser(name string) string {
	return strings.ReplaceAll(NormalizeName(name), ":", "_")
}

// HeadingID returns the DokuWiki section id for a heading text. It is
// never empty: headings made only of digits map to "section<digits>".
func HeadingID(heading string) string {
	id := normalize(heading, options{keepCase: true})
	id = anchorPunctRe.ReplaceAllString(id, "")

	if stripped := strings.TrimLeft(id, "0123456789_-"); stripped != "" {
		return stripped
	}
	return "section" + nonDigitRe.ReplaceAllString(id, "")
}

// PagePath splits a normalized id into namespace directories and the
// base name.
func PagePath(id string) (dirs []string, base string) {
	parts := strings.Split(strings.ReplaceAll(id, "/", ":"), ":")
	return parts[:len(parts)-1], parts[len(parts)-1]
}

func normalize(raw string, opts options) string {
	s := strings.ReplaceAll(raw, " ", "_")
	if opts.splitCamel {
		s = camelRe.ReplaceAllString(s, "${1}_${2}")
	}
	s = stripDiacritics(s)

	main, ext := s, ""
	if opts.splitExt {
		if e := path.Ext(s); e != "" && len(e) < len(s) && !strings.ContainsAny(e, "/:") {
			main, ext = s[:len(s)-len(e)], e
		}
	}

	illegal := anyIllegalRe
	if opts.keepSeparators {
		illegal = pageIllegalRe
	}
	result := illegal.ReplaceAllString(main, "_") + ext
	if !opts.keepCase {
		result = strings.ToLower(result)
	}
	for strings.Contains(result, "__") {
		result = strings.ReplaceAll(result, "__", "_")
	}
	return strings.Trim(result, "_")
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
