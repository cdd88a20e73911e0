package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/gaetancollaud/integrations-mqtt/pkg/integrations/all"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "integrations-mqtt",
	Short: "Device integrations bridged to Home Assistant over MQTT",
	Long: `integrations-mqtt sets up device integrations from config entries and
publishes their entities to MQTT with Home Assistant discovery.`,
	SilenceUsage: true,
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle: runServe reads rootCmd.Version.
	rootCmd.RunE = runServe
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: TRACE, DEBUG, INFO, WARN, ERROR (overrides log_level)")
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("integrations-mqtt %s\n", version))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
