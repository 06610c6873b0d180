// Package commands implements the integration-auditor CLI surface
// (spec.md §6): audit, fix, status, state, config, products and
// business-rules. It is adapted from the teacher's internal/cmd package:
// one cobra root command, persistent flags bound through viper, child
// commands registered from init().
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/catherinevee/integration-auditor/internal/logging"
)

var (
	cfgFile   string
	configDir string
	inputDir  string
	outputDir string
	logLevel  string

	rootCmd = &cobra.Command{
		Use:   "integration-auditor",
		Short: "Detect and remediate corrupted integration settings at fleet scale",
		Long: `integration-auditor scans a fleet of integration records for corrupted
or drifted settings, generates a reviewable remediation plan, and applies
it under a safety controller with circuit breaking, rate limiting and
restore bundles.`,
		Version: "1.0.0",
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "CLI settings file (default ./auditor.yaml)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory holding business-rules.json and remediation-logic.json")
	rootCmd.PersistentFlags().StringVar(&inputDir, "input-dir", "input", "directory holding per-tier CSV input")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "directory session output is written under")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config-dir", rootCmd.PersistentFlags().Lookup("config-dir"))
	viper.BindPFlag("input-dir", rootCmd.PersistentFlags().Lookup("input-dir"))
	viper.BindPFlag("output-dir", rootCmd.PersistentFlags().Lookup("output-dir"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("auditor")
	}
	viper.SetEnvPrefix("AUDITOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// rootLogger builds the logger every subcommand shares, honoring
// --log-level / AUDITOR_LOG_LEVEL.
func rootLogger() *logging.Logger {
	level := viper.GetString("log-level")
	if level == "" {
		level = logLevel
	}
	return logging.New(logging.ParseLevel(level), os.Stderr)
}

// cliError pairs an error with the process exit code it should produce,
// per spec.md §6's exit code table.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func exitErr(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// ExitCodeFor maps a cobra.Execute error to the process exit code.
// Errors not produced by exitErr are configuration/ingest class (2),
// matching spec.md §6's table: unrecognized failures default to the
// most conservative "stop and look" code.
func ExitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 2
}
