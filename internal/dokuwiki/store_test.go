package dokuwiki

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/wikiport/internal/convert"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "data"), 0o755))
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s, err := Open(root, convert.NewConverter(log, nil), log)
	require.NoError(t, err)
	return s, root
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(b)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func mtime(t *testing.T, path string) int64 {
	t.Helper()
	st, err := os.Stat(path)
	require.NoError(t, err)
	return st.ModTime().Unix()
}

func TestOpen_Preconditions(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), nil, nil)
	assert.ErrorIs(t, err, ErrRootMissing)

	root := t.TempDir()
	_, err = Open(root, nil, nil)
	assert.ErrorIs(t, err, ErrDataMissing)
	_, statErr := os.Stat(filepath.Join(root, "data", "pages"))
	assert.True(t, os.IsNotExist(statErr), "nothing is created when preconditions fail")

	_, root = newStore(t)
	for _, d := range []string{"pages", "meta", "attic"} {
		st, err := os.Stat(filepath.Join(root, "data", d))
		require.NoError(t, err, d)
		assert.True(t, st.IsDir())
	}
}

func TestPersist_WritesHistory(t *testing.T) {
	s, root := newStore(t)
	doc := Document{
		Title: "Foo Bar/CamelCase Page",
		Revisions: []Revision{
			{Timestamp: 300, Author: "Jane Doe", Comment: "third\nignored", Content: "v3 '''bold'''"},
			{Timestamp: 100, Author: "John", Comment: "first\tedit", Content: "v1"},
			{Timestamp: 200, Author: "Anon User", Content: "v2"},
		},
	}

	res, err := s.Persist(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "foo_bar:camel_case_page", res.ID)
	assert.Equal(t, 3, res.Revisions)
	assert.Zero(t, res.AtticSkipped)

	page := filepath.Join(root, "data", "pages", "foo_bar", "camel_case_page.txt")
	assert.Equal(t, page, s.PagePath(doc.Title))
	b, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Equal(t, "v3 **bold**\n\n", string(b))
	assert.Equal(t, int64(300), mtime(t, page))

	atticDir := filepath.Join(root, "data", "attic", "foo_bar")
	for ts, want := range map[string]string{"100": "v1\n\n", "200": "v2\n\n", "300": "v3 **bold**\n\n"} {
		path := filepath.Join(atticDir, "camel_case_page."+ts+".txt.gz")
		assert.Equal(t, want, readGzip(t, path), ts)
	}
	assert.Equal(t, int64(100), mtime(t, filepath.Join(atticDir, "camel_case_page.100.txt.gz")))

	changes := filepath.Join(root, "data", "meta", "foo_bar", "camel_case_page.changes")
	assert.Equal(t, []string{
		"100\t::1\tC\tfoo_bar:camel_case_page\tjohn\tfirst edit",
		"200\t::1\tE\tfoo_bar:camel_case_page\tanon_user\t",
		"300\t::1\tE\tfoo_bar:camel_case_page\tjane_doe\tthird",
	}, readLines(t, changes))
	assert.Equal(t, int64(300), mtime(t, changes))

	for _, d := range []string{"pages", "meta", "attic"} {
		assert.Equal(t, int64(300), mtime(t, filepath.Join(root, "data", d, "foo_bar")), d)
	}
}

func TestPersist_SameSecondKeepsLatest(t *testing.T) {
	s, root := newStore(t)
	res, err := s.Persist(context.Background(), Document{
		Title: "Clash",
		Revisions: []Revision{
			{Timestamp: 100, Author: "a", Content: "old"},
			{Timestamp: 100, Author: "b", Content: "new"},
			{Timestamp: 50, Author: "c", Content: "first"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Revisions)

	b, err := os.ReadFile(filepath.Join(root, "data", "pages", "clash.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new\n\n", string(b))
	assert.Equal(t, "new\n\n", readGzip(t, filepath.Join(root, "data", "attic", "clash.100.txt.gz")))
	assert.Equal(t, []string{
		"50\t::1\tC\tclash\tc\t",
		"100\t::1\tE\tclash\tb\t",
	}, readLines(t, filepath.Join(root, "data", "meta", "clash.changes")))
}

func TestPersist_Idempotent(t *testing.T) {
	s, root := newStore(t)
	doc := Document{Title: "Page", Revisions: []Revision{
		{Timestamp: 10, Author: "a", Content: "one"},
		{Timestamp: 20, Author: "b", Content: "two"},
	}}
	ctx := context.Background()

	_, err := s.Persist(ctx, doc)
	require.NoError(t, err)
	attic := filepath.Join(root, "data", "attic", "page.10.txt.gz")
	first, err := os.ReadFile(attic)
	require.NoError(t, err)
	firstChanges, err := os.ReadFile(filepath.Join(root, "data", "meta", "page.changes"))
	require.NoError(t, err)

	res, err := s.Persist(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AtticSkipped)

	again, err := os.ReadFile(attic)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	againChanges, err := os.ReadFile(filepath.Join(root, "data", "meta", "page.changes"))
	require.NoError(t, err)
	assert.Equal(t, firstChanges, againChanges)

	doc.Revisions = append(doc.Revisions, Revision{Timestamp: 30, Author: "c", Content: "three"})
	res, err = s.Persist(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AtticSkipped)

	entries, err := os.ReadDir(filepath.Join(root, "data", "attic"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	b, err := os.ReadFile(filepath.Join(root, "data", "pages", "page.txt"))
	require.NoError(t, err)
	assert.Equal(t, "three\n\n", string(b))
}

func TestPersist_AtticNotOverwritten(t *testing.T) {
	s, root := newStore(t)
	ctx := context.Background()
	_, err := s.Persist(ctx, Document{Title: "P", Revisions: []Revision{{Timestamp: 5, Content: "original"}}})
	require.NoError(t, err)

	_, err = s.Persist(ctx, Document{Title: "P", Revisions: []Revision{{Timestamp: 5, Content: "rewritten"}}})
	require.NoError(t, err)
	assert.Equal(t, "original\n\n", readGzip(t, filepath.Join(root, "data", "attic", "p.5.txt.gz")))
}

func TestPersist_Errors(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Persist(context.Background(), Document{Title: "Empty"})
	assert.ErrorIs(t, err, ErrNoRevisions)

	_, err = s.Persist(context.Background(), Document{Title: "///", Revisions: []Revision{{Timestamp: 1}}})
	assert.ErrorIs(t, err, ErrEmptyTitle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Persist(ctx, Document{Title: "x", Revisions: []Revision{{Timestamp: 1}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPersist_Markdown(t *testing.T) {
	s, root := newStore(t)
	_, err := s.Persist(context.Background(), Document{
		Title:     "Notes",
		Format:    "markdown",
		Revisions: []Revision{{Timestamp: 1, Content: "# Top\n\n**b**\n"}},
	})
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(root, "data", "pages", "notes.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "====== Top ======")
	assert.Contains(t, string(b), "**b**")
}

func TestChangeEntry_Parse(t *testing.T) {
	e, err := ParseChangeEntry("42\t::1\tE\tns:page\tbob\tfix typo\r\n")
	require.NoError(t, err)
	assert.Equal(t, ChangeEntry{Timestamp: 42, Origin: "::1", Action: ActionEdited, ID: "ns:page", User: "bob", Comment: "fix typo"}, e)
	assert.Equal(t, "42\t::1\tE\tns:page\tbob\tfix typo", e.String())

	e, err = ParseChangeEntry("7\t::1\tC")
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, e.Action)
	assert.Empty(t, e.ID)

	_, err = ParseChangeEntry("abc\t::1\tC\tx")
	assert.Error(t, err)
}

func TestRebuild_MergesAndSorts(t *testing.T) {
	var logBuf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logBuf, nil))
	dir := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("b.changes", "100\t::1\tC\tb\tu\t\n300\t::1\tE\tb\tu\t\n")
	write("a.changes", "100\t::1\tC\ta\tu\t\r\nbogus\tline\n\n")
	write("ns/c.changes", "200\t::1\tC\tns:c\tu\t\n")
	write("notes.txt", "1\t::1\tC\tignored\n")
	write(PageAggregate, "999\t::1\tC\tstale\tu\t\n")

	n, err := Rebuild(context.Background(), dir, PageAggregate, log)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	want := []string{
		"100\t::1\tC\ta\tu\t",
		"100\t::1\tC\tb\tu\t",
		"200\t::1\tC\tns:c\tu\t",
		"300\t::1\tE\tb\tu\t",
	}
	assert.Equal(t, want, readLines(t, filepath.Join(dir, PageAggregate)))
	assert.Contains(t, logBuf.String(), "skipping malformed change line")

	n, err = Rebuild(context.Background(), dir, PageAggregate, log)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "rebuild never reads its own output")
	assert.Equal(t, want, readLines(t, filepath.Join(dir, PageAggregate)))
}

func TestRebuild_Empty(t *testing.T) {
	dir := t.TempDir()
	n, err := Rebuild(context.Background(), dir, PageAggregate, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	b, err := os.ReadFile(filepath.Join(dir, PageAggregate))
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestStore_RebuildChanges(t *testing.T) {
	s, root := newStore(t)
	ctx := context.Background()
	_, err := s.Persist(ctx, Document{Title: "Beta", Revisions: []Revision{{Timestamp: 20, Author: "x"}, {Timestamp: 40, Author: "x"}}})
	require.NoError(t, err)
	_, err = s.Persist(ctx, Document{Title: "Alpha/Child", Revisions: []Revision{{Timestamp: 30, Author: "y"}}})
	require.NoError(t, err)

	n, err := s.RebuildChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	lines := readLines(t, filepath.Join(root, "data", "meta", PageAggregate))
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "20\t::1\tC\tbeta\t"))
	assert.True(t, strings.HasPrefix(lines[1], "30\t::1\tC\talpha:child\t"))
	assert.True(t, strings.HasPrefix(lines[2], "40\t::1\tE\tbeta\t"))

	n, err = s.RebuildMediaChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteMedia(t *testing.T) {
	s, root := newStore(t)
	ctx := context.Background()

	id, err := s.WriteMedia(ctx, Media{Name: "Chart Big.PNG", Timestamp: 500, Body: strings.NewReader("png")})
	require.NoError(t, err)
	assert.Equal(t, "file:chart_big.png", id)
	assert.Equal(t, id, MediaID("File", "Chart Big.PNG"))

	path := filepath.Join(root, "data", "media", "file", "chart_big.png")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(b))
	assert.Equal(t, int64(500), mtime(t, path))

	assert.Equal(t, []string{"500\t::1\tC\tfile:chart_big.png\t\tcreated"},
		readLines(t, filepath.Join(root, "data", "media_meta", "file", "chart_big.png.changes")))

	_, err = s.WriteMedia(ctx, Media{Name: "Other.jpg", Timestamp: 400, Body: strings.NewReader("jpg")})
	require.NoError(t, err)
	n, err := s.RebuildMediaChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	lines := readLines(t, filepath.Join(root, "data", "media_meta", MediaAggregate))
	assert.True(t, strings.HasPrefix(lines[0], "400\t"))
}

func TestInvalidateCache(t *testing.T) {
	s, root := newStore(t)
	assert.False(t, s.InvalidateCache())

	conf := filepath.Join(root, "conf", "local.php")
	require.NoError(t, os.MkdirAll(filepath.Dir(conf), 0o755))
	require.NoError(t, os.WriteFile(conf, []byte("<?php\n"), 0o644))
	old := time.Unix(1000, 0)
	require.NoError(t, os.Chtimes(conf, old, old))

	assert.True(t, s.InvalidateCache())
	assert.Greater(t, mtime(t, conf), int64(1000))
}
