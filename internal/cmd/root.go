package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autoserve/autoserve/internal/config"
	"github.com/autoserve/autoserve/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "autoserve",
	Short: "Maintenance run orchestrator",
	Long: `Autoserve launches the service maintenance worker, tracks each task's
progress through the worker's status protocol, and keeps a durable record
of the run so it survives application restarts.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/autoserve/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/autoserve")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUTOSERVE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., AUTOSERVE_RUNNER_BINARY for runner.binary
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadSettings builds the live settings holder and a logger from the
// current viper state. The caller owns closing the logger.
func loadSettings() (*config.Live, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logDir := ""
	if cfg.Logging.Enabled {
		logDir = cfg.DataDir()
	}
	logger, err := logging.NewLogger(logDir, cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	return config.NewLive(cfg), logger, nil
}
