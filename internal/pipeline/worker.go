package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgallion1/wikiport/internal/convert"
	"github.com/dgallion1/wikiport/internal/dokuwiki"
	"github.com/dgallion1/wikiport/internal/mwdump"
	"github.com/dgallion1/wikiport/internal/names"
	"github.com/dgallion1/wikiport/internal/parser"
	"golang.org/x/sync/errgroup"
)

// mediaExtensions are copied into the media namespace by directory
// imports. Anything else that is not markup is ignored.
var mediaExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".webp": true, ".ogg": true, ".mp3": true, ".mp4": true,
}

// WorkerConfig holds the knobs shared by every job a worker runs.
type WorkerConfig struct {
	Root  string // DokuWiki installation root
	Lanes int    // documents persisted in parallel

	// Resolver overrides the namespace table a dump's siteinfo would
	// provide. Nil means: use the dump's siteinfo, else the defaults.
	Resolver *names.Resolver

	// InvalidateCache touches conf/local.php after a successful import.
	InvalidateCache bool
}

// Worker runs import jobs.
type Worker struct {
	cfg   WorkerConfig
	stats *ConvertStats
	log   *slog.Logger
}

func NewWorker(cfg WorkerConfig, stats *ConvertStats, log *slog.Logger) *Worker {
	if cfg.Lanes <= 0 {
		cfg.Lanes = 1
	}
	if stats == nil {
		stats = NewConvertStats(time.Hour)
	}
	return &Worker{cfg: cfg, stats: stats, log: log}
}

// run is the state of one job while it executes.
type run struct {
	w     *Worker
	job   *Job
	log   *slog.Logger
	store *dokuwiki.Store

	g     *errgroup.Group
	gctx  context.Context
	lanes []chan dokuwiki.Document
}

// Process runs the full import for a job. Document failures are recorded
// on the job and never stop the batch; the change log aggregates are
// rebuilt once, after every lane has drained.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "source", job.Filename)
	r := &run{w: w, job: job, log: log}
	r.g, r.gctx = errgroup.WithContext(ctx)

	job.SetStatus(StatusReading, "reading")
	src := job.Source()
	st, err := os.Stat(src)
	if err != nil {
		r.fail("reading", fmt.Errorf("stat source: %w", err))
		return
	}

	var readErr error
	if st.IsDir() {
		readErr = r.readDir(src)
	} else {
		readErr = r.readDump(src)
	}

	r.closeLanes()
	if err := r.g.Wait(); err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		log.Error("import aborted", "error", readErr)
		job.AddError(readErr.Error())
	}

	snap := job.Snapshot()
	if r.store != nil && snap.Progress.PagesWritten+snap.Progress.Media > 0 && ctx.Err() == nil {
		job.SetStatus(StatusAggregating, "aggregating")
		r.aggregate(ctx, snap.Progress.Media > 0)
	}

	snap = job.Snapshot()
	written := snap.Progress.PagesWritten + snap.Progress.Media
	switch {
	case len(snap.Progress.Errors) == 0:
		r.finish(StatusCompleted, "done")
	case written > 0:
		r.finish(StatusPartial, "done")
	default:
		r.finish(StatusFailed, string(snap.Status))
	}
	log.Info("import finished",
		"status", job.Snapshot().Status,
		"pages", snap.Progress.PagesWritten,
		"revisions", snap.Progress.Revisions,
		"media", snap.Progress.Media,
		"warnings", snap.Progress.Warnings,
		"errors", len(snap.Progress.Errors))
}

func (r *run) fail(phase string, err error) {
	r.log.Error("import failed", "phase", phase, "error", err)
	r.job.AddError(err.Error())
	r.finish(StatusFailed, phase)
}

// finish removes a spooled upload before publishing the final status, so
// a poller that sees the job done never finds the upload still on disk.
func (r *run) finish(status JobStatus, phase string) {
	if err := r.job.releaseSource(); err != nil {
		r.log.Warn("failed to remove spooled upload", "error", err)
	}
	r.job.SetStatus(status, phase)
}

// open binds the run to a store whose converter uses resolver. It is
// called once, before the first document is dispatched.
func (r *run) open(resolver *names.Resolver) error {
	if r.store != nil {
		return nil
	}
	if r.w.cfg.Resolver != nil {
		resolver = r.w.cfg.Resolver
	}
	conv := convert.NewConverter(r.log, resolver)
	store, err := dokuwiki.Open(r.w.cfg.Root, conv, r.log)
	if err != nil {
		return err
	}
	r.store = store
	r.startLanes()
	r.job.SetStatus(StatusConverting, "converting")
	return nil
}

func (r *run) startLanes() {
	r.lanes = make([]chan dokuwiki.Document, r.w.cfg.Lanes)
	for i := range r.lanes {
		ch := make(chan dokuwiki.Document, 4)
		r.lanes[i] = ch
		r.g.Go(func() error {
			for doc := range ch {
				if err := r.gctx.Err(); err != nil {
					return err
				}
				r.persist(doc)
			}
			return nil
		})
	}
}

func (r *run) closeLanes() {
	for _, ch := range r.lanes {
		close(ch)
	}
}

// dispatch hands doc to the lane owning its target id, so two titles
// that normalize to the same page are written in input order.
func (r *run) dispatch(doc dokuwiki.Document) error {
	r.job.IncrPagesSeen()
	id := names.NormalizeName(doc.Title)
	lane := r.lanes[xxhash.Sum64String(id)%uint64(len(r.lanes))]
	select {
	case lane <- doc:
		return nil
	case <-r.gctx.Done():
		return r.gctx.Err()
	}
}

func (r *run) persist(doc dokuwiki.Document) {
	start := time.Now()
	res, err := r.store.Persist(r.gctx, doc)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.log.Warn("document failed", "title", doc.Title, "error", err)
		r.job.AddError(fmt.Sprintf("%s: %s", doc.Title, err))
		return
	}
	r.w.stats.Since(start, res.Revisions, res.Warnings)
	r.job.AddPage(res.Revisions, res.AtticSkipped, res.Warnings)
}

func (r *run) readDump(path string) error {
	dump, err := mwdump.Open(path)
	if err != nil {
		return err
	}
	defer dump.Close()

	err = mwdump.Read(r.gctx, dump, mwdump.Visitor{
		SiteInfo: func(si mwdump.SiteInfo) error {
			r.log.Info("reading dump", "site", si.SiteName, "file_namespace", si.FileNamespace(), "compression", dump.Compression)
			return r.open(si.Resolver())
		},
		Page: func(doc dokuwiki.Document) error {
			if err := r.open(names.DefaultResolver()); err != nil {
				return err
			}
			return r.dispatch(doc)
		},
		Media: func(m dokuwiki.Media) error {
			if err := r.open(names.DefaultResolver()); err != nil {
				return err
			}
			r.writeMedia(m)
			return nil
		},
	})
	if err != nil {
		return err
	}

	sum, err := dump.Digest()
	if err != nil {
		return err
	}
	r.job.SetDumpHash(sum)
	return nil
}

// readDir imports every markup file below dir as a single-revision
// document dated by its mtime. The relative path becomes the namespace.
func (r *run) readDir(dir string) error {
	if err := r.open(names.DefaultResolver()); err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		format, isMarkup := parser.SupportedExtensions[ext]
		if !isMarkup && !mediaExtensions[ext] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		if !isMarkup {
			f, err := os.Open(path)
			if err != nil {
				r.job.AddError(fmt.Sprintf("%s: %s", rel, err))
				return nil
			}
			defer f.Close()
			r.writeMedia(dokuwiki.Media{Name: filepath.Base(path), Timestamp: info.ModTime().Unix(), Body: f})
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			r.job.AddError(fmt.Sprintf("%s: %s", rel, err))
			return nil
		}
		title := filepath.ToSlash(filepath.Join(filepath.Dir(rel), parser.TitleFromFilename(rel)))
		return r.dispatch(dokuwiki.Document{
			Title:  title,
			Format: format,
			Revisions: []dokuwiki.Revision{{
				Timestamp: info.ModTime().Unix(),
				Content:   string(content),
			}},
		})
	})
}

func (r *run) writeMedia(m dokuwiki.Media) {
	if _, err := r.store.WriteMedia(r.gctx, m); err != nil {
		r.log.Warn("media failed", "name", m.Name, "error", err)
		r.job.AddError(fmt.Sprintf("%s: %s", m.Name, err))
		return
	}
	r.job.IncrMedia()
}

func (r *run) aggregate(ctx context.Context, media bool) {
	n, err := r.store.RebuildChanges(ctx)
	if err != nil {
		r.log.Error("rebuild page change log failed", "error", err)
		r.job.AddError(fmt.Sprintf("changes: %s", err))
	} else {
		r.job.SetChangeEntries(n)
	}
	if media {
		if _, err := r.store.RebuildMediaChanges(ctx); err != nil {
			r.log.Error("rebuild media change log failed", "error", err)
			r.job.AddError(fmt.Sprintf("media changes: %s", err))
		}
	}
	if r.w.cfg.InvalidateCache {
		r.store.InvalidateCache()
	}
}
