// Package main implements the prospect CLI.
//
// prospect researches a company on behalf of a job seeker. One run fans
// out parallel research workers over fixed domains (history, future,
// culture), absorbs individual tool failures, and synthesizes a single
// markdown report that is archived locally.
package main

import (
	"fmt"
	"os"
	"time"

	"prospect/internal/config"
	"prospect/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded configuration, shared by the subcommands.
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "prospect",
	Short: "prospect - company research for your next interview",
	Long: `prospect researches a company before you talk to them.

One run launches three research workers in parallel, one per domain
(history, future, culture). Each worker iterates over bounded tool
calls, absorbs individual failures, and keeps whatever it found. The
findings are synthesized into a single markdown report and archived
locally so past runs stay searchable.

Set GEMINI_API_KEY for LLM-backed planning and synthesis; without a
key prospect still runs with deterministic policies and template
rendering.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		// Categorized file logging stays a no-op unless debug_mode is
		// enabled in the workspace config.
		if root, werr := config.FindWorkspaceRoot(); werr == nil {
			if lerr := logging.Initialize(root); lerr != nil {
				logger.Warn("File logging unavailable", zap.Error(lerr))
			}
			if aerr := logging.InitAudit(); aerr != nil {
				logger.Warn("Audit logging unavailable", zap.Error(aerr))
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default: nearest .prospect/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Hard bound on any single command")

	// research flags
	researchCmd.Flags().StringVar(&roleFlag, "role", "", "Target role or title to slant the research")
	researchCmd.Flags().StringVar(&jobDescFlag, "job-description", "", "Job posting text, or a path to a .txt/.md file with it")
	researchCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the raw markdown report to this file")
	researchCmd.Flags().BoolVar(&plainOutput, "plain", false, "Disable the live progress display")
	researchCmd.Flags().BoolVar(&noArchive, "no-archive", false, "Skip archiving this run")

	// history flags
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")

	// show flags
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print the stored markdown without terminal rendering")

	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
