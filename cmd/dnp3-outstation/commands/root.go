// Package commands implements the dnp3-outstation CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dnp3-outstation",
	Short: "A DNP3 (IEEE 1815) outstation engine",
	Long: `dnp3-outstation runs the outstation side of a DNP3 master/outstation
dialog: it answers READ, WRITE, SELECT/OPERATE and the other application-layer
function codes, reports buffered events, and accepts a single master
connection over a demo length-prefixed TCP transport.

Use "dnp3-outstation [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dnp3-outstation/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(simulateEventCmd)
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error to stderr and exits with status 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
