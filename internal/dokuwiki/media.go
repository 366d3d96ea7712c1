package dokuwiki

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/wikiport/internal/names"
)

// Media is one uploaded file. Only the latest version is kept; DokuWiki
// media history is not reconstructed.
type Media struct {
	Name      string // MediaWiki file name without namespace, e.g. "Chart.png"
	Timestamp int64
	Body      io.Reader
}

// MediaID returns the DokuWiki id of a media file stored in the file
// namespace ns.
func MediaID(ns, name string) string {
	return strings.ToLower(ns) + ":" + mediaName(name)
}

func mediaName(name string) string {
	return strings.ReplaceAll(names.NormalizeName(name), ":", "_")
}

// WriteMedia copies m into data/media/<ns>/ and records a single creation
// entry in data/media_meta/<ns>/<name>.changes. The file namespace comes
// from the converter's resolver so embeds and stored files agree.
func (s *Store) WriteMedia(ctx context.Context, m Media) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := mediaName(m.Name)
	if name == "" {
		return "", fmt.Errorf("%q: %w", m.Name, ErrEmptyTitle)
	}
	ns := strings.ToLower(s.conv.Resolver().FileNamespace())

	dir := filepath.Join(s.media, ns)
	metaDir := filepath.Join(s.mediaMeta, ns)
	for _, d := range []string{dir, metaDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", d, err)
		}
	}

	data, err := io.ReadAll(m.Body)
	if err != nil {
		return "", fmt.Errorf("read media %q: %w", m.Name, err)
	}
	mtime := time.Unix(m.Timestamp, 0)
	if err := writeFileAtomic(filepath.Join(dir, name), data, mtime); err != nil {
		return "", fmt.Errorf("write media %q: %w", m.Name, err)
	}

	entry := ChangeEntry{
		Timestamp: m.Timestamp,
		Origin:    OriginPlaceholder,
		Action:    ActionCreated,
		ID:        MediaID(ns, m.Name),
		Comment:   "created",
	}
	if err := writeFileAtomic(filepath.Join(metaDir, name+".changes"), []byte(entry.String()+"\n"), mtime); err != nil {
		return "", fmt.Errorf("write media changes %q: %w", m.Name, err)
	}

	s.log.Debug("stored media", "id", entry.ID, "bytes", len(data))
	return entry.ID, nil
}

// InvalidateCache bumps the mtime of conf/local.php, which makes DokuWiki
// discard every rendered page cache. Failure is logged, not returned:
// the import itself succeeded and the admin can touch the file by hand.
func (s *Store) InvalidateCache() bool {
	conf := filepath.Join(s.root, "conf", "local.php")
	now := time.Now()
	err := os.Chtimes(conf, now, now)
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn("no conf/local.php to touch; pre-existing page caches stay valid", "path", conf)
	} else {
		s.log.Warn("failed to invalidate page cache, touch the file manually", "path", conf, "error", err)
	}
	return false
}
