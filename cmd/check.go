package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/gaetancollaud/integrations-mqtt/pkg/config"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/gaetancollaud/integrations-mqtt/pkg/store"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and list the integrations and stored entries",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd.ErrOrStderr())
	config, err := config.ReadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("error found when reading the config: %w", err)
	}
	setLogLevel(config.LogLevel)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config: %s\n", config.String())
	fmt.Fprintln(out, "Integrations:")
	for _, domain := range core.Domains() {
		fmt.Fprintf(out, "  %s\n", domain)
	}
	for _, integration := range config.Integrations {
		if _, ok := core.Lookup(integration.Domain); !ok {
			return fmt.Errorf("%w: %s declared in config", core.ErrUnknownDomain, integration.Domain)
		}
	}

	ctx := context.Background()
	db, err := store.Open(ctx, config.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	entries, err := store.NewEntryRepository(db).List(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Entries (%d):\n", len(entries))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, entry := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", entry.EntryId, entry.Domain, entry.Title, entry.Source)
	}
	return w.Flush()
}
