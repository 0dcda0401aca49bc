// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/pcaplens/internal/config"
	"firestige.xyz/pcaplens/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string

	// Set by the root PersistentPreRunE before any subcommand runs.
	globalCfg  *config.GlobalConfig
	logOutputs *log.Outputs
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcaplens",
	Short: "pcaplens - offline packet capture analyzer",
	Long: `pcaplens reads pcap and pcapng captures and summarizes them.

For every capture it reports:
  - Capture timing and packet count
  - The protocol hierarchy with per-layer packet counts
  - MAC and IP address inventories, with vendor and hostname lookups
  - Reassembled TCP and UDP conversation payloads
  - Public IP addresses the capture talked to

Results go to stdout, report files or Kafka, and the same analysis is
available over HTTP with "pcaplens serve".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		// PostRun is skipped when RunE fails; log files still need flushing.
		teardown()
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (default: built-in defaults plus PCAPLENS_* env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the global config and initializes logging.
func setup(cmd *cobra.Command) error {
	if cmd.Name() == versionCmd.Name() {
		return nil
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	outputs, err := log.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	globalCfg = cfg
	logOutputs = outputs
	return nil
}

func teardown() error {
	err := logOutputs.Close()
	logOutputs = nil
	return err
}
