package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skillrun-dev/skillrun/pkg/logger"
	"github.com/skillrun-dev/skillrun/pkg/presenter"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("SKILLRUN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.skillrun")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "skillrun",
	Short: "Skillrun executes skill tools from SKILL.md files and sandboxed modules",
	Long: `Skillrun loads skill definitions from SKILL.md markdown files or WebAssembly
modules, validates their declared capabilities, and executes their tools with
bound arguments. Native skills run as subprocesses; module skills run inside
a WebAssembly sandbox with only the capabilities they declare.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if quiet, err := cmd.Flags().GetBool("quiet"); err == nil {
			presenter.SetQuiet(quiet)
		}
		if level, err := cmd.Flags().GetString("log-level"); err == nil && level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				return err
			}
		}
		if format, err := cmd.Flags().GetString("log-format"); err == nil && format != "" {
			logger.SetLogFormat(format)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func main() {
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json, text, fmt)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := initTracing(ctx)
	if err != nil {
		presenter.Warning("tracing initialization failed: " + err.Error())
		shutdown = func(context.Context) error { return nil }
	}

	err = rootCmd.ExecuteContext(ctx)
	if shutdownErr := shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
		logger.L.WithError(shutdownErr).Debug("tracing shutdown failed")
	}
	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
