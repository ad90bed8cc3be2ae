package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/JonMunkholm/drupalmigrate/internal/source"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	importFile     string
	importDrupal   bool
	importDryRun   bool
	importRulesOut string
	importQuiet    bool
)

var importCmd = &cobra.Command{
	Use:   "import <importer>",
	Short: "Run an importer over a CSV export or the Drupal database",
	Long: `Run one importer. Records are read from a CSV export (--file, "-" for
stdin) or queried from the Drupal database at DRUPAL_DSN (--drupal).

Each record is reported as created, updated, skipped or failed; a failed
record never stops the run. With --dry-run nothing is written, but the report
and rewrite rules are produced as if it had been.

Examples:
  drupalmigrate import users --drupal
  drupalmigrate import posts --file posts.csv --dry-run
  drupalmigrate import comments --drupal --rules-out rewrite.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "CSV export to import (- for stdin)")
	importCmd.Flags().BoolVar(&importDrupal, "drupal", false, "Read records from the Drupal database")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Resolve everything but write nothing")
	importCmd.Flags().StringVar(&importRulesOut, "rules-out", "", "Write rewrite rules to this file (- for stdout; the report then goes to stderr)")
	importCmd.Flags().BoolVarP(&importQuiet, "quiet", "q", false, "Hide the progress bar")
	importCmd.MarkFlagsMutuallyExclusive("file", "drupal")
	importCmd.MarkFlagsOneRequired("file", "drupal")
}

func runImport(cmd *cobra.Command, args []string) error {
	key := args[0]
	if _, ok := core.Get(key); !ok {
		return fmt.Errorf("unknown importer %q (available: %v)", key, core.Keys())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, importDrupal)
	if err != nil {
		return err
	}
	defer a.Close()

	input, srcName, closeInput, err := openInput(ctx, a, key)
	if err != nil {
		return err
	}
	defer closeInput()

	var bar *progressbar.ProgressBar
	if !importQuiet && !jsonOutput {
		bar = newProgressBar("importing " + key)
	}

	ctx = core.ContextWithRequester(ctx, core.Requester{Source: "cli", UserAgent: "drupalmigrate"})
	report, runErr := a.service.Import(ctx, key, input, core.RunRequest{
		Preview: importDryRun,
		Source:  srcName,
		OnProgress: func(p core.RunProgress) {
			if bar != nil && p.Phase == core.PhaseImporting {
				_ = bar.Add(1)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if report == nil {
		return runErr
	}

	if err := writeRules(cmd.OutOrStdout(), report.RewriteRules); err != nil {
		return err
	}

	out := reportWriter(cmd)
	if jsonOutput {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if runErr != nil {
		return errors.New(core.FormatUserError(runErr))
	}
	return nil
}

// openInput returns the record reader for the run and a func releasing it.
func openInput(ctx context.Context, a *app, key string) (core.RecordReader, string, func(), error) {
	if importDrupal {
		d, err := a.requireDrupal()
		if err != nil {
			return nil, "", nil, err
		}
		reg, _ := core.Get(key)
		if reg.Info.Query == "" {
			return nil, "", nil, fmt.Errorf("importer %q has no Drupal query; use --file", key)
		}
		rows, err := d.Query(ctx, reg.Info.Query)
		if err != nil {
			return nil, "", nil, err
		}
		return rows, "drupal:" + key, func() { _ = rows.Close() }, nil
	}

	var r io.ReadCloser = os.Stdin
	srcName := "stdin"
	if importFile != "-" {
		f, err := os.Open(importFile)
		if err != nil {
			return nil, "", nil, err
		}
		r, srcName = f, filepath.Base(importFile)
	}

	csvr, err := source.NewCSVReader(r)
	if err != nil {
		_ = r.Close()
		return nil, "", nil, fmt.Errorf("%s: %w", srcName, err)
	}
	return csvr, srcName, func() { _ = r.Close() }, nil
}

// newProgressBar counts records; the total is unknown until the input ends.
func newProgressBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// writeRules writes the rewrite rules, one per line, to --rules-out. "-"
// selects stdout.
func writeRules(stdout io.Writer, rules string) error {
	if rules != "" && !strings.HasSuffix(rules, "\n") {
		rules += "\n"
	}
	switch importRulesOut {
	case "":
		return nil
	case "-":
		_, err := io.WriteString(stdout, rules)
		return err
	default:
		return os.WriteFile(importRulesOut, []byte(rules), 0o644)
	}
}

// reportWriter keeps stdout for the rules alone when they are written there.
func reportWriter(cmd *cobra.Command) io.Writer {
	if importRulesOut == "-" {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

func printReport(w io.Writer, r *core.Report) {
	mode := ""
	if r.Preview {
		mode = " (dry run, nothing written)"
	}
	fmt.Fprintf(w, "Run %s: %s from %s%s\n", r.RunID, r.Importer, r.Source, mode)
	fmt.Fprintf(w, "  created %d, updated %d, skipped %d, failed %d in %s\n",
		r.Counts.Created, r.Counts.Updated, r.Counts.Skipped, r.Counts.Failed,
		r.Duration.Round(time.Millisecond))

	for _, f := range r.Failures() {
		key := f.Key
		if key == "" {
			key = "-"
		}
		fmt.Fprintf(w, "  line %d (%s): %s\n", f.Line, key, f.Reason)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  aborted: %s\n", r.Error)
	}
}
