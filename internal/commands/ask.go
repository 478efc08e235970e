package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// askCmd answers a single question and exits.
var askCmd = &cobra.Command{
	Use:   "ask QUESTION...",
	Short: "Answer one question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(GetConfig())
		if err != nil {
			return err
		}
		defer a.close()

		answer, err := a.service.Answer(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer.Format())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
