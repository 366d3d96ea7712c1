package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/wikiport/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with a clean environment and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("WIKIPORT_CONFIG", "")
	t.Setenv("WIKIPORT_ROOT", "")
	t.Setenv("WIKIPORT_FILE_NAMESPACE", "")
	t.Setenv("WIKIPORT_FILE_ALIASES", "")

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestConvert_Stdin(t *testing.T) {
	out, err := run(t, "== Intro ==\n'''hi'''", "convert")
	require.NoError(t, err)
	assert.Equal(t, "===== Intro =====\n**hi**\n\n", out)

	out, err = run(t, "# Top\n\n*x*\n", "convert", "--format", "markdown")
	require.NoError(t, err)
	assert.Equal(t, "====== Top ======\n//x//\n\n", out)
}

func TestConvert_FileToFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Page.html")
	dst := filepath.Join(dir, "page.txt")
	writeFile(t, src, "<p><b>b</b></p>")

	out, err := run(t, "", "convert", src, "-o", dst)
	require.NoError(t, err)
	assert.Empty(t, out)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "**b**\n\n", string(b))
}

func TestConvert_Errors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.rtf")
	writeFile(t, src, "x")

	_, err := run(t, "", "convert", src)
	assert.ErrorContains(t, err, "unsupported file extension")

	_, err = run(t, "x", "convert", "--format", "rtf")
	assert.ErrorContains(t, err, "unsupported format")

	_, err = run(t, "", "convert", filepath.Join(dir, "absent.wiki"))
	assert.Error(t, err)

	_, err = run(t, "", "--log-level", "loud", "convert")
	assert.Error(t, err)
}

func TestConvert_FileNamespaceFlag(t *testing.T) {
	out, err := run(t, "[[Datei:Logo.png|100px]]", "convert", "--file-namespace", "Datei")
	require.NoError(t, err)
	assert.Contains(t, out, "{{datei:logo.png?100}}")
}

func TestImportThenRebuild(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "data"), 0o755))
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Home.wiki"), "hello")

	out, err := run(t, "", "--root", root, "import", src, "--lanes", "2", "--invalidate-cache=false")
	require.NoError(t, err)
	var snap pipeline.JobSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, pipeline.StatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.Progress.PagesWritten)

	b, err := os.ReadFile(filepath.Join(root, "data", "pages", "home.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n\n", string(b))

	out, err = run(t, "", "--root", root, "rebuild-changes")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", "meta", "_dokuwiki.changes")+": 1 entries\n"+
		filepath.Join(root, "data", "media_meta", "_media.changes")+": 0 entries\n", out)
}

func TestImport_Errors(t *testing.T) {
	_, err := run(t, "", "import", t.TempDir())
	assert.ErrorContains(t, err, "WIKIPORT_ROOT is required")

	root := t.TempDir()
	_, err = run(t, "", "--root", root, "import", filepath.Join(root, "absent.xml"))
	assert.Error(t, err)

	// A root without data/ fails the job.
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.wiki"), "a")
	out, err := run(t, "", "--root", root, "import", src, "--invalidate-cache=false")
	assert.ErrorContains(t, err, "status failed")
	assert.Contains(t, out, `"status": "failed"`)
}

func TestServe_RequiresAPIKey(t *testing.T) {
	t.Setenv("WIKIPORT_API_KEY", "")
	_, err := run(t, "", "--root", t.TempDir(), "serve")
	assert.ErrorContains(t, err, "WIKIPORT_API_KEY is required")
}
