package main

import (
	"os"

	"github.com/spf13/cobra"

	"faultguard/common"
	"faultguard/config"
)

var (
	// Global flags
	verbose bool
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "faultmon",
	Short: "Fault supervisor core tooling",
	Long: `faultmon drives the safety fault supervisor core from the command line.

Commands:
  check     Encode or decode one word through the ECC codec
  simulate  Replay a fault-injection scenario file
  run       Run the supervisor on a wall-clock tick`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file (built-in defaults when unset)")
}

// loadConfig resolves the --config flag, falling back to the built-in
// defaults when no file was given.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

// newLogger builds the command logger. --verbose or the configuration's
// verbose key lowers the floor to debug.
func newLogger(cfg *config.Config) common.Logger {
	min := common.SeverityInfo
	if verbose || cfg.Verbose {
		min = common.SeverityDebug
	}
	return common.NewStdLogger(min)
}
