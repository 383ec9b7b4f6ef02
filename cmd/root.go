package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parnexcodes/pairlink/internal/config"
	"github.com/parnexcodes/pairlink/internal/logging"
)

var (
	cfgFile      string
	verbose      bool
	logLevel     string
	logFormat    string
	outputFormat string

	rootCmd = &cobra.Command{
		Use:   "pairlink",
		Short: "Pair messaging accounts by code and export their session credentials",
		Long: `Pairlink serves pairing codes over HTTP. Each request starts a device
session for the given phone number; once the user enters the code, the
session credentials are uploaded to a file host and the link is sent back
to the user's own chat.`,
		SilenceUsage: true,
	}
)

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (forces debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format (auto, text, json)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	logging.Init(logging.Options{
		Level:   viper.GetString("log.level"),
		Format:  viper.GetString("log.format"),
		Verbose: viper.GetBool("verbose"),
		Output:  os.Stderr,
	})

	source := "CLI flags only"
	if viper.ConfigFileUsed() != "" {
		source = viper.ConfigFileUsed()
	}
	logging.ConfigLoad(source, nil)
}

// loadConfig resolves the effective configuration from defaults, file, env and flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logging.ErrorContext("config_load", err, map[string]interface{}{
			"source": viper.ConfigFileUsed(),
		})
		return nil, err
	}

	logging.ConfigLoad("effective_values", map[string]interface{}{
		"verbose":         cfg.Verbose,
		"output":          cfg.Output,
		"sessions_dir":    cfg.Sessions.Dir,
		"gateway_url":     cfg.Protocol.GatewayURL,
		"providers_count": len(cfg.Providers),
	})
	return cfg, nil
}
