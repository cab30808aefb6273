// Package cmd wires configuration, logging and the command surfaces.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"answerd/internal/config"
	"answerd/internal/observability"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "answerd",
	Short:   "answerd answers questions with a local model, augmented by live web research when freshness matters.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		config.SetDefaults(v)

		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		} else {
			v.AddConfigPath(".")
			if home, err := os.UserHomeDir(); err == nil {
				v.AddConfigPath(home + "/.answerd")
			}
			v.SetConfigName("answerd")
			v.SetConfigType("yaml")
		}

		v.SetEnvPrefix("ANSWERD")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading config file: %w", err)
			}
			// No config file; defaults and env vars apply.
		}

		if logLevel != "" {
			v.Set("logging.level", logLevel)
		}

		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded

		observability.InitializeLogger(cfg.Logging)
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		observability.GetLogger().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./answerd.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
