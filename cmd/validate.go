package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/pcaplens/internal/bpfutil"
	"firestige.xyz/pcaplens/internal/config"
	"firestige.xyz/pcaplens/internal/sink"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without analyzing anything.

Checks the YAML structure and values, the BPF filter and every configured
sink. Without -f the file given by --config is checked.

Examples:
  pcaplens validate -f pcaplens.yml
  pcaplens -c /etc/pcaplens/pcaplens.yml validate`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if validateConfigFile != "" {
			path = validateConfigFile
		}
		return runValidate(path, cmd.OutOrStdout())
	},
}

var validateConfigFile string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "",
		"configuration file to validate")
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	if cfg.Analysis.BPFFilter != "" {
		if err := bpfutil.Validate(cfg.Analysis.BPFFilter); err != nil {
			return fmt.Errorf("INVALID: analysis.bpf_filter: %w", err)
		}
	}
	for i, sc := range cfg.Sinks {
		s, err := sink.New(sc.Type, sc.Options)
		if err != nil {
			return fmt.Errorf("INVALID: sinks[%d]: %w", i, err)
		}
		s.Close()
	}

	name := path
	if name == "" {
		name = "(defaults)"
	}
	fmt.Fprintf(w, "VALID: %s - output %s, %d sink(s), server %s\n",
		name, cfg.Output.Format, len(cfg.Sinks), cfg.Server.Listen)
	return nil
}
