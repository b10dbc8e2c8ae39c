// Package cli implements the chanbridge command line
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sammck-go/chanbridge/pkg/config"
	"github.com/sammck-go/chanbridge/pkg/logger"
)

// BuildVersion is set at link time
var BuildVersion = "0.0.0-src"

// app holds what every subcommand needs once flags are parsed
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	lg         logger.Logger
}

// Execute runs the chanbridge command
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "chanbridge",
		Short: "Relay structured channels, nested at any depth, over a text connection",
		Long: "chanbridge multiplexes message channels over a single websocket. Channels sent inside " +
			"a message become live channels on the far side.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (TOML)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: error, warning, info, debug or trace")

	rootCmd.AddCommand(
		newServeCmd(a),
		newDialCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	lg, err := logger.FromConfig(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.lg = lg
	return nil
}
