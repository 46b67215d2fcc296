// Package cli wires configuration, logging and the prediction pipeline into the
// penguinlab command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"penguinlab/config"
	"penguinlab/db"
	"penguinlab/logging"
	"penguinlab/penguins"
)

const defaultConfigPath = "config.yaml"

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "penguinlab",
		Short:         "Predict Palmer penguin species with a random forest",
		Long:          `Trains a random forest on the Palmer Penguins reference data for every request and classifies the penguin you describe.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file")

	configPath := func() string { return cfgFile }
	rootCmd.AddCommand(
		newServeCommand(configPath),
		newPredictCommand(configPath),
		newRangesCommand(configPath),
		newEvaluateCommand(configPath),
	)
	return rootCmd
}

// runtime holds what every command needs after loading the config.
type runtime struct {
	configPath string
	config     *config.Config
	logger     *zap.Logger
	source     penguins.Source
}

func loadRuntime(path string) (*runtime, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	return &runtime{
		configPath: path,
		config:     cfg,
		logger:     logger,
		source:     newSource(cfg, logger),
	}, nil
}

func newSource(cfg *config.Config, logger *zap.Logger) penguins.Source {
	return penguins.NewSource(cfg.Dataset.URL, cfg.Dataset.Timeout, cfg.Dataset.CacheTTL, logger)
}

// openStore returns nil when the prediction log is disabled.
func (rt *runtime) openStore() (*db.Store, error) {
	if rt.config.Database.Path == "" {
		return nil, nil
	}
	store, err := db.Open(rt.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", rt.config.Database.Path, err)
	}
	rt.logger.Info("prediction log enabled", zap.String("path", rt.config.Database.Path))
	return store, nil
}

func (rt *runtime) close() {
	rt.logger.Sync()
}
