package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"librarian/internal/extract"
	"librarian/internal/service"
)

// ingestCmd adds or replaces documents in the index.
var ingestCmd = &cobra.Command{
	Use:   "ingest FILE|GLOB...",
	Short: "Add documents to the index",
	Long: `Extract, chunk and embed the given .txt, .md and .pdf files and store them in the index.
A document that was ingested before is replaced, so re-running ingest after editing a file is safe.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(GetConfig())
		if err != nil {
			return err
		}
		defer a.close()

		report := a.service.IngestFiles(cmd.Context(), args, extract.IsSupported)
		printReport(cmd, report)
		return report.Err()
	},
}

func printReport(cmd *cobra.Command, report service.IngestReport) {
	out := cmd.OutOrStdout()
	for _, r := range report.Succeeded {
		fmt.Fprintf(out, "%s %s %s\n", success("✓"), r.DocumentID, muted(fmt.Sprintf("(%d chunks)", r.Chunks)))
	}
	for _, f := range report.Failed {
		fmt.Fprintf(out, "%s %s: %v\n", failure("✗"), f.Path, f.Err)
	}
	fmt.Fprintf(out, "%d document(s), %d chunk(s) indexed", len(report.Succeeded), report.TotalChunks())
	if n := len(report.Failed); n > 0 {
		fmt.Fprintf(out, ", %d failed", n)
	}
	fmt.Fprintln(out)
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
