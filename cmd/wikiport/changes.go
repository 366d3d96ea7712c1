package main

import (
	"fmt"
	"path/filepath"

	"github.com/dgallion1/wikiport/internal/dokuwiki"
	"github.com/spf13/cobra"
)

func newRebuildChangesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-changes",
		Short: "Rebuild the page and media change log aggregates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireRoot(a.cfg); err != nil {
				return err
			}
			store, err := dokuwiki.Open(a.cfg.Root, nil, a.log)
			if err != nil {
				return err
			}
			pages, err := store.RebuildChanges(cmd.Context())
			if err != nil {
				return err
			}
			media, err := store.RebuildMediaChanges(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d entries\n", filepath.Join(store.MetaDir(), dokuwiki.PageAggregate), pages)
			fmt.Fprintf(w, "%s: %d entries\n", filepath.Join(store.MediaMetaDir(), dokuwiki.MediaAggregate), media)
			return nil
		},
	}
}
