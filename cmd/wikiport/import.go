package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgallion1/wikiport/internal/pipeline"
	"github.com/spf13/cobra"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		lanes           int
		invalidateCache bool
	)
	cmd := &cobra.Command{
		Use:   "import <dump|dir>",
		Short: "Import a MediaWiki XML dump or a directory of pages",
		Long: "Import writes every page and revision of a MediaWiki export (plain,\n" +
			"gzip, xz or bzip2) or a directory tree of markup files into the\n" +
			"DokuWiki installation at --root, then rebuilds the change logs.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(a.cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("lanes") {
				a.cfg.Lanes = lanes
			}
			if cmd.Flags().Changed("invalidate-cache") {
				a.cfg.InvalidateCache = invalidateCache
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			src := args[0]
			if _, err := os.Stat(src); err != nil {
				return fmt.Errorf("import source: %w", err)
			}
			w := pipeline.NewWorker(pipeline.WorkerConfig{
				Root:            a.cfg.Root,
				Lanes:           a.cfg.Lanes,
				Resolver:        a.resolver(),
				InvalidateCache: a.cfg.InvalidateCache,
			}, pipeline.NewConvertStats(a.cfg.StatsWindow), a.log)

			job := pipeline.NewJob(filepath.Base(src), src, false)
			start := time.Now()
			w.Process(ctx, job)
			snap := job.Snapshot()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return err
			}
			a.log.Info("import summary", "status", snap.Status, "elapsed", time.Since(start).Round(time.Millisecond).String())

			if snap.Status != pipeline.StatusCompleted {
				return fmt.Errorf("import finished with status %s (%d errors)", snap.Status, len(snap.Progress.Errors))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lanes, "lanes", 0, "pages persisted in parallel (default from config)")
	cmd.Flags().BoolVar(&invalidateCache, "invalidate-cache", true, "touch conf/local.php when done")
	return cmd
}
