package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"librarian/internal/config"
	"librarian/internal/logging"
)

// quietLogs marks commands that own the terminal; their logs go to the log file only.
const quietLogs = "quiet-logs"

var (
	cfgFile       string
	cfgUsed       string
	currentConfig *config.AppConfig
	appVersion    = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "librarian",
	Short:         "librarian answers questions from your own documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, used, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		currentConfig, cfgUsed = cfg, used

		if err := logging.Init(cfg.Log.File, cmd.Annotations[quietLogs] == "true"); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.Version = appVersion

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, failure("Error:"), err)
		os.Exit(1)
	}
}

// SetVersion allows the main package to inject the build version.
func SetVersion(version string) { appVersion = version }

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./librarian.yaml or ~/.config/librarian/config.yaml)")

	rootCmd.PersistentFlags().String("store", "", "vector store: sqlite, memory, qdrant or pinecone")
	rootCmd.PersistentFlags().String("embedder", "", "embedder: ollama, openai or hashing")
	rootCmd.PersistentFlags().String("generator", "", "answer generator: ollama, openai or extractive")
	rootCmd.PersistentFlags().Int("top-k", 0, "number of chunks to retrieve")
	rootCmd.PersistentFlags().Float64("threshold", 0, "minimum cosine similarity for a chunk to count as relevant")
	rootCmd.PersistentFlags().String("log-file", "", "path to the log file")

	bindFlags(rootCmd, viper.GetViper())
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	for flag, key := range map[string]string{
		"store":     config.KeyVectorStore,
		"embedder":  config.KeyEmbedder,
		"generator": config.KeyGenerator,
		"top-k":     config.KeyTopK,
		"threshold": config.KeyThreshold,
		"log-file":  config.KeyLogFile,
	} {
		_ = v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag))
	}
}

// loadConfig merges defaults, the config file, the environment and flags
// (in increasing precedence) and validates the result.
func loadConfig(v *viper.Viper) (*config.AppConfig, string, error) {
	if err := config.BindEnv(v); err != nil {
		return nil, "", err
	}
	var (
		cfg  *config.AppConfig
		used = cfgFile
		err  error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, used, err = config.LoadDefault()
	}
	if err != nil {
		return nil, "", err
	}
	config.ApplyOverrides(cfg, v)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, used, nil
}

// GetConfig returns the loaded application configuration.
func GetConfig() *config.AppConfig {
	return currentConfig
}
