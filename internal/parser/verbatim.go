package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/wikiport/internal/doctree"
)

var (
	nowikiRe  = regexp.MustCompile(`(?is)<nowiki\s*>.*?</nowiki\s*>|<nowiki\s*/>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// ExtractVerbatim replaces every <nowiki> region of src with a numbered
// placeholder and returns the rewritten text together with the captured
// regions. Comments outside those regions are removed.
func ExtractVerbatim(src string) (string, []string) {
	var blocks []string
	out := nowikiRe.ReplaceAllStringFunc(src, func(m string) string {
		blocks = append(blocks, m)
		return doctree.Placeholder(len(blocks) - 1)
	})
	return commentRe.ReplaceAllString(out, ""), blocks
}

// Raw elements have bodies that are never parsed as wikitext. They are
// lifted out before block parsing and replaced by markers that survive
// line splitting.
const (
	rawOpen  = "\uE002"
	rawClose = "\uE003"
)

type rawElem struct {
	name  string
	attrs string
	body  string
}

var rawTagRes = func() map[string]*regexp.Regexp {
	m := map[string]*regexp.Regexp{}
	for _, name := range []string{"pre", "math", "source", "syntaxhighlight", "gallery"} {
		m[name] = regexp.MustCompile(`(?is)<` + name + `(\s[^>]*)?>(.*?)</` + name + `\s*>`)
	}
	return m
}()

// extractRaw lifts raw elements out of src in document order.
func extractRaw(src string) (string, []rawElem) {
	var elems []rawElem
	var sb strings.Builder
	for {
		start, end := -1, -1
		var name string
		var sub []int
		for n, re := range rawTagRes {
			loc := re.FindStringSubmatchIndex(src)
			if loc != nil && (start < 0 || loc[0] < start) {
				start, end, name, sub = loc[0], loc[1], n, loc
			}
		}
		if start < 0 {
			sb.WriteString(src)
			return sb.String(), elems
		}

		e := rawElem{name: name, body: src[sub[4]:sub[5]]}
		if sub[2] >= 0 {
			e.attrs = strings.TrimSpace(src[sub[2]:sub[3]])
		}
		if name == "pre" || name == "source" || name == "syntaxhighlight" {
			e.body = strings.TrimPrefix(e.body, "\n")
		}
		sb.WriteString(src[:start])
		sb.WriteString(rawMarker(len(elems)))
		elems = append(elems, e)
		src = src[end:]
	}
}

func rawMarker(i int) string {
	return rawOpen + strconv.Itoa(i) + rawClose
}

// rawIndex parses a marker at the start of s, returning the element
// index and the marker length.
func rawIndex(s string) (int, int, bool) {
	if !strings.HasPrefix(s, rawOpen) {
		return 0, 0, false
	}
	end := strings.Index(s, rawClose)
	if end < 0 {
		return 0, 0, false
	}
	idx, err := strconv.Atoi(s[len(rawOpen):end])
	if err != nil {
		return 0, 0, false
	}
	return idx, end + len(rawClose), true
}
