// Package commands implements the nanoslide CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "nanoslide",
	Short: "Turn a PDF into a styled slide deck and transition video",
	Long: `nanoslide reads a PDF document, plans a styled slide-by-slide retelling of
it with a generative model, renders one image per slide, assembles them into
a presentation, interpolates transition videos between consecutive slides,
and fuses the transitions into a single video.

Every stage writes durable artifacts under the output directory and skips
work that is already done, so any command can be rerun safely after a
failure and only the missing pieces are generated.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
