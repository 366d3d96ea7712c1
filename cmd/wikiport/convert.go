package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/wikiport/internal/convert"
	"github.com/dgallion1/wikiport/internal/names"
	"github.com/dgallion1/wikiport/internal/parser"
	"github.com/spf13/cobra"
)

func newConvertCmd(a *app) *cobra.Command {
	var format, title, out string
	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert one page to DokuWiki markup",
		Long: "Convert reads a single page (or stdin when the file is omitted or \"-\")\n" +
			"and writes DokuWiki markup to stdout or --out. The format follows the\n" +
			"file extension unless --format is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			f := parser.Format(format)
			if src != "-" {
				file, err := os.Open(src)
				if err != nil {
					return fmt.Errorf("open source: %w", err)
				}
				defer file.Close()
				in = file
				if f == "" {
					ext := strings.ToLower(filepath.Ext(src))
					var ok bool
					if f, ok = parser.SupportedExtensions[ext]; !ok {
						return fmt.Errorf("unsupported file extension %q (use --format)", ext)
					}
				}
				if title == "" {
					title = parser.TitleFromFilename(src)
				}
			}
			if _, err := parser.ForFormat(f, nil); err != nil {
				return err
			}

			resolver := a.resolver()
			if resolver == nil {
				resolver = names.DefaultResolver()
			}
			conv := convert.NewConverter(a.log, resolver)
			res, err := conv.ConvertSource(in, f, title)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				w = file
			}
			if _, err := io.WriteString(w, res.Text); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if res.Warnings > 0 {
				a.log.Warn("converted with warnings", "title", title, "warnings", res.Warnings)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "source format: wikitext, markdown or html")
	cmd.Flags().StringVarP(&title, "title", "t", "", "page title (defaults to the file name)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}
