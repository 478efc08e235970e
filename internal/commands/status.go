package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd checks that every configured component is reachable.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the embedder, vector index and generator",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(GetConfig())
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", heading("Config:"), cfgUsed)
		healthy := true
		for _, st := range a.service.Status(ctx) {
			mark := success("✓")
			if !st.Healthy {
				mark = failure("✗")
				healthy = false
			}
			fmt.Fprintf(out, "%s %-28s %s\n", mark, st.Name, muted(st.Detail))
		}
		if !healthy {
			return errors.New("one or more components are unavailable")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
