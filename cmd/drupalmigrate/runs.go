package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show import run history",
	Long: `List recent import runs, newest first.

Examples:
  drupalmigrate runs --limit 5
  drupalmigrate runs show <run-id>
  drupalmigrate runs rules <run-id> > rewrite.txt`,
	Args: cobra.NoArgs,
	RunE: runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its failed records",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsRulesCmd = &cobra.Command{
	Use:   "rules <run-id>",
	Short: "Print the rewrite rules produced by a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsRules,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsRulesCmd)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.service.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(runs)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tIMPORTER\tSTARTED\tCREATED\tUPDATED\tSKIPPED\tFAILED\tBY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Importer, r.StartedAt.Local().Format(time.DateTime),
			r.Counts.Created, r.Counts.Updated, r.Counts.Skipped, r.Counts.Failed,
			r.RequestedBy.Source)
	}
	return tw.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.service.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(run)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s: %s from %s\n", run.ID, run.Importer, run.Source)
	fmt.Fprintf(w, "  started %s by %s, took %s\n",
		run.StartedAt.Local().Format(time.DateTime), run.RequestedBy.Source, run.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  created %d, updated %d, skipped %d, failed %d\n",
		run.Counts.Created, run.Counts.Updated, run.Counts.Skipped, run.Counts.Failed)
	for _, f := range run.Failures {
		fmt.Fprintf(w, "  line %d (%s): %s\n", f.Line, f.Key, f.Reason)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  aborted: %s\n", run.Error)
	}
	return nil
}

func runRunsRules(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	rules, err := a.service.RewriteRules(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), rules)
	return err
}
