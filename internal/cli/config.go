package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/replwatch/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration replwatch would run with, after merging the
config file, REPLWATCH_* environment variables and defaults. The output is
valid YAML and can be saved as .replwatch.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}

			if cfg.ConfigFile != "" {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", cfg.ConfigFile); err != nil {
					return err
				}
			}

			_, err = cmd.OutOrStdout().Write(out)

			return err
		},
	}

	return cmd
}
