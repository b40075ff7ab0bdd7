package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/teamflow/internal/printer"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a completed run's document",
	Long: `Write a finalized run's document to stdout or a file.

Formats:
  md      - the final composite document
  ide     - an implementation prompt for IDE agents plus the source sections
  cursor  - the final document without API design, blank lines collapsed
  summary - a compressed bullet summary`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "Export format (md, ide, cursor, summary)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to a file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.service.Export(ctx, args[0], exportFormat)
	if err != nil {
		return serviceError(err, args[0])
	}

	if exportOut == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), doc.Content)
		return err
	}
	if err := os.WriteFile(exportOut, []byte(doc.Content), 0644); err != nil {
		return printer.Error("export failed", fmt.Sprintf("Could not write %s: %v", exportOut, err))
	}
	printer.Success("Wrote %s (%d bytes)", exportOut, len(doc.Content))
	return nil
}
