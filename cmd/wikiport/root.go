package main

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgallion1/wikiport/internal/config"
	"github.com/dgallion1/wikiport/internal/names"
	"github.com/spf13/cobra"
)

// app carries what every subcommand shares once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	root       string
	fileNs     string
	fileAlias  []string

	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:          "wikiport",
		Short:        "Convert MediaWiki content into a DokuWiki installation",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "TOML config file (default $WIKIPORT_CONFIG)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&a.root, "root", "", "DokuWiki installation root (default $WIKIPORT_ROOT)")
	pf.StringVar(&a.fileNs, "file-namespace", "", "name of the File namespace in the source wiki")
	pf.StringSliceVar(&a.fileAlias, "file-alias", nil, "prefixes that refer to the File namespace")

	cmd.AddCommand(
		newConvertCmd(a),
		newImportCmd(a),
		newRebuildChangesCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// load reads the config file and environment, then applies flags.
func (a *app) load(cmd *cobra.Command) error {
	var (
		cfg config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("root") {
		cfg.Root = a.root
	}
	if flags.Changed("file-namespace") {
		cfg.FileNamespace = a.fileNs
	}
	if flags.Changed("file-alias") {
		cfg.FileAliases = a.fileAlias
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	// stdout is reserved for command output.
	a.log = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	a.cfg = cfg
	return nil
}

// resolver returns the namespace table the configuration asks for, or
// nil when it is the built-in one so that dump siteinfo can take over.
func (a *app) resolver() *names.Resolver {
	def := config.Defaults()
	if names.NormalizeName(a.cfg.FileNamespace) == names.NormalizeName(def.FileNamespace) &&
		slices.Equal(a.cfg.FileAliases, def.FileAliases) {
		return nil
	}
	return names.NewResolver(a.cfg.FileNamespace, a.cfg.FileAliases, names.DefaultNamespaces...)
}

func requireRoot(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w (set --root)", err)
	}
	return nil
}
