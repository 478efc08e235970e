package commands

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"librarian/internal/extract"
	"librarian/internal/tui"
)

// runProgram is swapped out in tests.
var runProgram = func(m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// chatCmd starts the interactive question-and-answer interface. Files given
// as arguments are ingested before it opens.
var chatCmd = &cobra.Command{
	Use:         "chat [FILE|GLOB...]",
	Short:       "Chat with your documents",
	Annotations: map[string]string{quietLogs: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(GetConfig())
		if err != nil {
			return err
		}
		defer a.close()

		m := tui.New(cmd.Context(), a.service, extract.IsSupported, nil)
		if len(args) > 0 {
			report := a.service.IngestFiles(cmd.Context(), args, extract.IsSupported)
			if len(report.Succeeded) == 0 {
				return report.Err()
			}
			m = m.WithIngestReport(report)
		}
		return runProgram(m)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
