package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "rfqmap",
	Short: "Electrostatic field-map builder for RFQ accelerating structures",
	Long: `rfqmap sweeps the cells of an RFQ vane model through an external
geometry/mesh/solve engine and assembles the sampled per-cell fields into a
single field-map table for beam-tracking tools.

Progress is checkpointed per cell; a killed sweep resumes where it stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "rfqmap.yaml", "configuration file")
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		newLogger().Error("command failed", "error", err)
		os.Exit(1)
	}
}
