package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scipunch/newsdigest/config"
	"github.com/scipunch/newsdigest/fetcher/types"
	"github.com/scipunch/newsdigest/logging"
)

const (
	exitFailure     = 1
	exitConfigError = 2
)

var (
	debugMode   bool
	configPaths []string
	date        string
	settings    = config.DefaultSettings()
)

var rootCmd = &cobra.Command{
	Use:           "newsdigest",
	Short:         "Collect RSS/Atom feeds into dated Markdown digests",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(os.Stderr, debugMode)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the digest of every configured collection for one date",
	Long: `Fetches every feed of each collection, keeps entries matching the
collection keywords and writes <output>/<collection>/<YYYY-MM-DD>.md.
The date defaults to today in the reference timezone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDigests(cmd.Context(), configPaths, settings, date)
	},
}

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write an example collection config (.toml, .yaml or .yml)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite existing config at '%s'", path)
		}
		return config.Write(path, exampleCollection())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	runCmd.Flags().StringSliceVarP(&configPaths, "config", "c", []string{"collections"}, "Collection config files or directories")
	runCmd.Flags().StringVar(&date, "date", "", "Digest date as YYYY-MM-DD (defaults to today)")
	runCmd.Flags().StringVarP(&settings.OutputDirectory, "output", "o", settings.OutputDirectory, "Root directory for digests")
	runCmd.Flags().DurationVar(&settings.Timeout, "timeout", settings.Timeout, "Per-feed fetch timeout")
	runCmd.Flags().IntVar(&settings.Concurrency, "concurrency", settings.Concurrency, "Feeds fetched at once per collection (0 = all)")
	runCmd.Flags().StringVar(&settings.Timezone, "timezone", settings.Timezone, "Reference timezone for digest dates")
	runCmd.Flags().BoolVar(&settings.SkipEmpty, "skip-empty", settings.SkipEmpty, "Do not write digests without entries")

	rootCmd.AddCommand(runCmd, initCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("newsdigest failed", "error", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var cfgErr *types.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}
	return exitFailure
}

func exampleCollection() config.CollectionConfig {
	return config.CollectionConfig{
		Name: "ai-news",
		Feeds: []types.FeedSource{
			{Name: "Hacker News", URL: "https://hnrss.org/frontpage", Category: "tech"},
			{Name: "arXiv cs.AI", URL: "https://rss.arxiv.org/rss/cs.AI", Category: "official"},
		},
		Keywords:        []string{"AI", "LLM", "machine learning"},
		ExcludeKeywords: []string{"sponsored"},
		FetchWindow:     &config.Duration{Duration: config.DefaultFetchWindow},
	}
}
