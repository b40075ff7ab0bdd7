package commands

import (
	"os"

	"github.com/dyluth/teamflow/internal/printer"
	"github.com/dyluth/teamflow/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	initForce   bool
	initPrompts bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter teamflow.yml and example agent",
	Long: `Write teamflow.yml and agents/generate.sh into the current directory.

With --prompts, editable copies of the built-in stage prompts are written to
prompts/; point pipeline.prompt_dir at that directory to use them.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initPrompts, "prompts", false, "Also write the prompt templates to prompts/")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	created, err := scaffold.Initialize(cwd, scaffold.Options{Force: initForce, Prompts: initPrompts})
	if err != nil {
		return printer.Error("init failed", err.Error())
	}

	printer.Success("Initialized teamflow project")
	for _, path := range created {
		printer.Info("  %s", path)
	}
	printer.Info("\nNext steps:")
	printer.Info("  1. Edit agents/generate.sh to call your model")
	printer.Info("  2. Run 'teamflow serve'")
	printer.Info("  3. Run 'teamflow submit \"your idea\"'")
	return nil
}
