package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying defaults, the config file,
WITCTL_* environment variables and flags, as YAML.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		if cfg.Source() != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.Source())
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "# no config file found; defaults")
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
