package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/spf13/cobra"
)

var importersCmd = &cobra.Command{
	Use:   "importers",
	Short: "List registered importers",
	Args:  cobra.NoArgs,
	// Listing needs no store or profile.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runImporters,
}

func runImporters(cmd *cobra.Command, _ []string) error {
	var infos []core.ImporterInfo
	for _, reg := range core.All() {
		infos = append(infos, reg.Info)
	}
	if jsonOutput {
		return printJSON(infos)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tDESCRIPTION")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Key, info.EntityType, info.Description)
	}
	return tw.Flush()
}
