package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"librarian/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

// configShowCmd prints the merged configuration with secrets masked.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after the config file, environment variables and flags have been merged.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfgUsed, GetConfig().String())
	},
}

// configInitCmd writes the default configuration to a file.
var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	// Skip loading: the file being created may not exist yet.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "librarian.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", success("✓"), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
