package dokuwiki

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Aggregate change log names, relative to the meta and media_meta
// directories.
const (
	PageAggregate  = "_dokuwiki.changes"
	MediaAggregate = "_media.changes"
)

// OriginPlaceholder stands in for the editor's IP address.
const OriginPlaceholder = "::1"

// Action is the change type column of a .changes line.
type Action string

const (
	ActionCreated Action = "C"
	ActionEdited  Action = "E"
)

// ChangeEntry is one line of a .changes file.
type ChangeEntry struct {
	Timestamp int64
	Origin    string
	Action    Action
	ID        string
	User      string
	Comment   string
}

// String formats the entry as a tab-separated line without the line
// break.
func (e ChangeEntry) String() string {
	return strings.Join([]string{
		strconv.FormatInt(e.Timestamp, 10), e.Origin, string(e.Action), e.ID, e.User, e.Comment,
	}, "\t")
}

// ParseChangeEntry parses one .changes line. Only the timestamp is
// validated; missing trailing fields are left empty.
func ParseChangeEntry(line string) (ChangeEntry, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return ChangeEntry{}, fmt.Errorf("parse timestamp %q: %w", fields[0], err)
	}
	e := ChangeEntry{Timestamp: ts}
	for i, dst := range []*string{&e.Origin, nil, &e.ID, &e.User, &e.Comment} {
		if i+1 >= len(fields) {
			break
		}
		if dst == nil {
			e.Action = Action(fields[i+1])
			continue
		}
		*dst = fields[i+1]
	}
	return e, nil
}

type logLine struct {
	ts   int64
	text string
}

// lockRetry is how often a blocked rebuild polls the aggregate lock.
const lockRetry = 50 * time.Millisecond

// Rebuild regenerates dir/aggregate from every other .changes file below
// dir. Lines are stably sorted by timestamp, so entries with equal
// timestamps keep the lexical file walk order. Lines without a numeric
// timestamp are skipped with a warning. The aggregate is replaced
// atomically, and concurrent rebuilds of the same aggregate are serialized
// through a lock file next to it. It returns the number of entries
// written.
func Rebuild(ctx context.Context, dir, aggregate string, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	lock := flock.New(filepath.Join(dir, aggregate+".lock"))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return 0, fmt.Errorf("lock %s: %w", aggregate, err)
	}
	if !locked {
		return 0, fmt.Errorf("lock %s: not acquired", aggregate)
	}
	defer lock.Unlock()

	var lines []logLine
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == aggregate || !strings.HasSuffix(d.Name(), ".changes") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		found, err := readChanges(path, log)
		if err != nil {
			return err
		}
		lines = append(lines, found...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}

	slices.SortStableFunc(lines, func(a, b logLine) int {
		switch {
		case a.ts < b.ts:
			return -1
		case a.ts > b.ts:
			return 1
		}
		return 0
	})

	tmp, err := os.CreateTemp(dir, "."+aggregate+".tmp*")
	if err != nil {
		return 0, fmt.Errorf("create aggregate: %w", err)
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, l := range lines {
		w.WriteString(l.text)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write aggregate: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("write aggregate: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("write aggregate: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, aggregate)); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("replace aggregate: %w", err)
	}

	log.Info("rebuilt change log", "aggregate", filepath.Join(dir, aggregate), "entries", len(lines))
	return len(lines), nil
}

func readChanges(path string, log *slog.Logger) ([]logLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []logLine
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		e, err := ParseChangeEntry(text)
		if err != nil {
			log.Warn("skipping malformed change line", "file", path, "line", n, "error", err)
			continue
		}
		out = append(out, logLine{ts: e.Timestamp, text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// RebuildChanges regenerates the page aggregate.
func (s *Store) RebuildChanges(ctx context.Context) (int, error) {
	return Rebuild(ctx, s.meta, PageAggregate, s.log)
}

// RebuildMediaChanges regenerates the media aggregate. A store without
// media_meta has nothing to aggregate.
func (s *Store) RebuildMediaChanges(ctx context.Context) (int, error) {
	if _, err := os.Stat(s.mediaMeta); os.IsNotExist(err) {
		return 0, nil
	}
	return Rebuild(ctx, s.mediaMeta, MediaAggregate, s.log)
}
