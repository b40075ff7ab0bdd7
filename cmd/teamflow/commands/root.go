package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "teamflow",
	Short: "Teamflow - staged document generation runs",
	Long: `Teamflow turns a short product idea into a reviewed technical document.

A run passes the idea through intake, design, verification, consultation and
an optional review stage, each delegated to a configured generation agent.
Run state, artifacts and events live in Redis; workers execute queued runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Cobra's own error output is silenced;
// commands report failures through the printer package.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to teamflow.yml (default: ./teamflow.yml when present)")
}
