package mwdump

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/dgallion1/wikiport/internal/dokuwiki"
	"github.com/dgallion1/wikiport/internal/names"
)

// FileNamespaceKey is the fixed MediaWiki namespace number for files.
const FileNamespaceKey = 6

// SiteInfo is the <siteinfo> header of a dump.
type SiteInfo struct {
	SiteName   string
	Base       string
	Namespaces map[int]string
}

// FileNamespace returns the localized name of namespace 6, or "File".
func (si SiteInfo) FileNamespace() string {
	if name := si.Namespaces[FileNamespaceKey]; name != "" {
		return name
	}
	return names.DefaultFileNamespace
}

// Resolver builds a namespace resolver for the site. The localized file
// namespace is canonical; the English File and Image names stay aliases
// because content routinely mixes them.
func (si SiteInfo) Resolver() *names.Resolver {
	if len(si.Namespaces) == 0 {
		return names.DefaultResolver()
	}
	var other []string
	for key, name := range si.Namespaces {
		if key != FileNamespaceKey && name != "" {
			other = append(other, name)
		}
	}
	return names.NewResolver(si.FileNamespace(), names.DefaultFileAliases, other...)
}

// Visitor receives dump contents in document order. Nil callbacks skip
// that kind of element. Returning an error stops the read.
type Visitor struct {
	SiteInfo func(SiteInfo) error
	Page     func(dokuwiki.Document) error
	// Media is called for <upload> elements that embed their file
	// contents (dumps made with --uploads --include-files).
	Media func(dokuwiki.Media) error
}

// Read streams the dump in r, one top-level element at a time, so memory
// use is bounded by the largest single page history.
func Read(ctx context.Context, r io.Reader, v Visitor) error {
	p, err := xmlquery.CreateStreamParser(r, "/mediawiki/*")
	if err != nil {
		return fmt.Errorf("create stream parser: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read dump: %w", err)
		}

		switch n.Data {
		case "siteinfo":
			if v.SiteInfo != nil {
				if err := v.SiteInfo(parseSiteInfo(n)); err != nil {
					return err
				}
			}
		case "page":
			doc, err := parsePage(n)
			if err != nil {
				return err
			}
			if v.Page != nil && len(doc.Revisions) > 0 {
				if err := v.Page(doc); err != nil {
					return err
				}
			}
			if v.Media != nil {
				for _, up := range xmlquery.Find(n, "upload") {
					m, ok, err := parseUpload(up)
					if err != nil {
						return fmt.Errorf("page %q: %w", doc.Title, err)
					}
					if ok {
						if err := v.Media(m); err != nil {
							return err
						}
					}
				}
			}
		}
	}
}

func parseSiteInfo(n *xmlquery.Node) SiteInfo {
	si := SiteInfo{
		SiteName:   childText(n, "sitename"),
		Base:       childText(n, "base"),
		Namespaces: map[int]string{},
	}
	for _, ns := range xmlquery.Find(n, "namespaces/namespace") {
		key, err := strconv.Atoi(ns.SelectAttr("key"))
		if err != nil {
			continue
		}
		si.Namespaces[key] = strings.TrimSpace(ns.InnerText())
	}
	return si
}

func parsePage(n *xmlquery.Node) (dokuwiki.Document, error) {
	doc := dokuwiki.Document{Title: childText(n, "title")}
	for _, rev := range xmlquery.Find(n, "revision") {
		ts, err := parseTimestamp(childText(rev, "timestamp"))
		if err != nil {
			return doc, fmt.Errorf("page %q: %w", doc.Title, err)
		}
		doc.Revisions = append(doc.Revisions, dokuwiki.Revision{
			Timestamp: ts,
			Author:    contributor(rev),
			Comment:   childText(rev, "comment"),
			Content:   childText(rev, "text"),
		})
	}
	return doc, nil
}

func parseUpload(n *xmlquery.Node) (dokuwiki.Media, bool, error) {
	contents := xmlquery.FindOne(n, "contents")
	if contents == nil {
		return dokuwiki.Media{}, false, nil
	}
	name := childText(n, "filename")
	if enc := contents.SelectAttr("encoding"); enc != "" && enc != "base64" {
		return dokuwiki.Media{}, false, fmt.Errorf("upload %q: unsupported encoding %q", name, enc)
	}
	ts, err := parseTimestamp(childText(n, "timestamp"))
	if err != nil {
		return dokuwiki.Media{}, false, fmt.Errorf("upload %q: %w", name, err)
	}
	body := strings.NewReader(strings.Join(strings.Fields(contents.InnerText()), ""))
	return dokuwiki.Media{
		Name:      name,
		Timestamp: ts,
		Body:      base64.NewDecoder(base64.StdEncoding, body),
	}, true, nil
}

// contributor prefers the account name and falls back to the IP address
// of an anonymous edit.
func contributor(rev *xmlquery.Node) string {
	if u := childText(rev, "contributor/username"); u != "" {
		return u
	}
	return childText(rev, "contributor/ip")
}

func parseTimestamp(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.Unix(), nil
}

func childText(n *xmlquery.Node, path string) string {
	c := xmlquery.FindOne(n, path)
	if c == nil {
		return ""
	}
	return c.InnerText()
}
