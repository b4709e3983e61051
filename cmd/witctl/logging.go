package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/witctl/pkg/config"
)

// loadConfig resolves the configuration for cmd and builds its logger.
// --verbose raises the level to debug unless --log-level or the config
// file set one explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && !cmd.Flags().Changed("log-level") {
		if level, _ := cfg.Level(); level < logrus.DebugLevel {
			cfg.LogLevel = logrus.DebugLevel.String()
		}
	}

	logger := cfg.NewLogger()
	if cfg.Source() != "" {
		logger.WithField("file", cfg.Source()).Debug("Loaded configuration")
	}
	return cfg, logger, nil
}
