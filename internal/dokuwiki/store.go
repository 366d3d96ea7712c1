// Package dokuwiki writes converted documents into a DokuWiki data
// directory: current pages, gzipped attic revisions and .changes indexes.
package dokuwiki

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dgallion1/wikiport/internal/convert"
	"github.com/dgallion1/wikiport/internal/names"
	"github.com/dgallion1/wikiport/internal/parser"
	"github.com/klauspost/compress/gzip"
)

var (
	ErrRootMissing = errors.New("dokuwiki root is not a directory")
	ErrDataMissing = errors.New("dokuwiki root has no data directory")
	ErrNoRevisions = errors.New("document has no revisions")
	ErrEmptyTitle  = errors.New("document title normalizes to an empty name")
)

// Revision is one historical version of a document.
type Revision struct {
	Timestamp int64 // Unix seconds, UTC
	Author    string
	Comment   string
	Content   string
}

// Document is a titled revision history. Format names the markup of the
// revision contents; empty means MediaWiki wikitext.
type Document struct {
	Title     string
	Format    parser.Format
	Revisions []Revision
}

// PersistResult summarizes one Persist call.
type PersistResult struct {
	ID           string // DokuWiki page id, e.g. "foo:bar"
	Revisions    int
	AtticSkipped int
	Warnings     int
}

// Store is a DokuWiki data directory.
type Store struct {
	root      string
	pages     string
	meta      string
	attic     string
	media     string
	mediaMeta string

	conv *convert.Converter
	log  *slog.Logger
}

// Open checks that root is a DokuWiki installation with a data directory
// and creates the pages, meta and attic directories when missing.
func Open(root string, conv *convert.Converter, log *slog.Logger) (*Store, error) {
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, root)
	}
	data := filepath.Join(root, "data")
	if st, err := os.Stat(data); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDataMissing, root)
	}
	if log == nil {
		log = slog.Default()
	}
	if conv == nil {
		conv = convert.NewConverter(log, nil)
	}

	s := &Store{
		root:      root,
		pages:     filepath.Join(data, "pages"),
		meta:      filepath.Join(data, "meta"),
		attic:     filepath.Join(data, "attic"),
		media:     filepath.Join(data, "media"),
		mediaMeta: filepath.Join(data, "media_meta"),
		conv:      conv,
		log:       log,
	}
	for _, dir := range []string{s.meta, s.attic, s.pages} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// MetaDir returns the directory holding page .changes files.
func (s *Store) MetaDir() string { return s.meta }

// MediaMetaDir returns the directory holding media .changes files.
func (s *Store) MediaMetaDir() string { return s.mediaMeta }

// PagePath returns where the current version of title is written.
func (s *Store) PagePath(title string) string {
	dirs, base := names.PagePath(names.NormalizeName(title))
	return filepath.Join(append(append([]string{s.pages}, dirs...), base+".txt")...)
}

// Persist converts every revision of doc and writes the current page, one
// attic copy per revision and the page's .changes index. Existing attic
// files are never rewritten, so re-running an unchanged history is a no-op
// apart from the current page and the index.
func (s *Store) Persist(ctx context.Context, doc Document) (PersistResult, error) {
	if len(doc.Revisions) == 0 {
		return PersistResult{}, fmt.Errorf("%q: %w", doc.Title, ErrNoRevisions)
	}
	id := names.NormalizeName(doc.Title)
	if id == "" {
		return PersistResult{}, fmt.Errorf("%q: %w", doc.Title, ErrEmptyTitle)
	}
	res := PersistResult{ID: id}

	dirs, base := names.PagePath(id)
	pageDir := filepath.Join(append([]string{s.pages}, dirs...)...)
	metaDir := filepath.Join(append([]string{s.meta}, dirs...)...)
	atticDir := filepath.Join(append([]string{s.attic}, dirs...)...)
	for _, d := range []string{pageDir, metaDir, atticDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return res, fmt.Errorf("create %s: %w", d, err)
		}
	}

	revs := slices.Clone(doc.Revisions)
	slices.SortStableFunc(revs, func(a, b Revision) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	if kept := latestPerSecond(revs); len(kept) < len(revs) {
		s.log.Debug("collapsed same-second revisions", "id", id, "dropped", len(revs)-len(kept))
		revs = kept
	}

	changesPath := filepath.Join(metaDir, base+".changes")
	changes, err := os.OpenFile(changesPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return res, fmt.Errorf("open changes: %w", err)
	}
	defer changes.Close()
	w := bufio.NewWriter(changes)

	for i, rev := range revs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		out, err := s.conv.ConvertSource(strings.NewReader(rev.Content), doc.Format, doc.Title)
		if err != nil {
			return res, fmt.Errorf("convert %q@%d: %w", doc.Title, rev.Timestamp, err)
		}
		res.Warnings += out.Warnings
		mtime := time.Unix(rev.Timestamp, 0)

		if i == len(revs)-1 {
			if err := writeFileAtomic(filepath.Join(pageDir, base+".txt"), []byte(out.Text), mtime); err != nil {
				return res, fmt.Errorf("write page: %w", err)
			}
		}

		written, err := writeAttic(filepath.Join(atticDir, fmt.Sprintf("%s.%d.txt.gz", base, rev.Timestamp)), out.Text, mtime)
		if err != nil {
			return res, fmt.Errorf("write attic: %w", err)
		}
		if !written {
			res.AtticSkipped++
		}

		entry := ChangeEntry{
			Timestamp: rev.Timestamp,
			Origin:    OriginPlaceholder,
			Action:    ActionEdited,
			ID:        id,
			User:      names.CleanUser(rev.Author),
			Comment:   cleanComment(rev.Comment),
		}
		if i == 0 {
			entry.Action = ActionCreated
		}
		if _, err := w.WriteString(entry.String() + "\n"); err != nil {
			return res, fmt.Errorf("write changes: %w", err)
		}
		res.Revisions++
	}

	if err := w.Flush(); err != nil {
		return res, fmt.Errorf("write changes: %w", err)
	}
	if err := changes.Close(); err != nil {
		return res, fmt.Errorf("close changes: %w", err)
	}
	last := time.Unix(revs[len(revs)-1].Timestamp, 0)
	if err := os.Chtimes(changesPath, last, last); err != nil {
		return res, fmt.Errorf("set changes mtime: %w", err)
	}
	if err := stampNamespaceDirs(dirs, last, s.pages, s.meta, s.attic); err != nil {
		return res, fmt.Errorf("set namespace mtime: %w", err)
	}

	s.log.Debug("persisted page", "id", id, "revisions", res.Revisions, "attic_skipped", res.AtticSkipped)
	return res, nil
}

// latestPerSecond keeps only the last revision of each run sharing a
// timestamp. revs must be sorted by timestamp.
func latestPerSecond(revs []Revision) []Revision {
	out := revs[:0]
	for i, rev := range revs {
		if i+1 < len(revs) && revs[i+1].Timestamp == rev.Timestamp {
			continue
		}
		out = append(out, rev)
	}
	return out
}

// stampNamespaceDirs sets the mtime of every namespace directory below
// each base, deepest first. The bases themselves are shared by all pages
// and are left alone.
func stampNamespaceDirs(dirs []string, t time.Time, bases ...string) error {
	for _, base := range bases {
		for i := len(dirs); i > 0; i-- {
			d := filepath.Join(append([]string{base}, dirs[:i]...)...)
			if err := os.Chtimes(d, t, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanComment keeps the first line of an edit summary with tabs turned
// into spaces, so it fits one tab-separated field.
func cleanComment(c string) string {
	first, _, _ := strings.Cut(c, "\n")
	return strings.TrimRight(strings.ReplaceAll(first, "\t", " "), "\r")
}

// writeAttic gzips content to path unless the file already exists. The
// gzip header carries the revision time so output is reproducible.
func writeAttic(path, content string, mtime time.Time) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	zw := gzip.NewWriter(f)
	zw.ModTime = mtime
	if _, err := zw.Write([]byte(content)); err != nil {
		f.Close()
		os.Remove(path)
		return false, err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return false, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return false, err
	}
	return true, os.Chtimes(path, mtime, mtime)
}

// writeFileAtomic replaces path through a temp file in the same
// directory and stamps it with mtime.
func writeFileAtomic(path string, data []byte, mtime time.Time) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chtimes(tmpName, mtime, mtime); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
