package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fishset/fishdedup/cmd/server"
	"github.com/fishset/fishdedup/config"
	"github.com/fishset/fishdedup/logging"
	"github.com/fishset/fishdedup/models"
	"github.com/fishset/fishdedup/services"
)

var (
	configDir  string
	logLevel   string
	threshold  float64
	strategy   string
	hashSize   int
	useCache   bool
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:           "fishdedup",
	Short:         "Find and remove near-duplicate images with perceptual hashing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configDir, "config-dir", "config", "directory holding app.yaml and dedup.yaml")
	pf.StringVar(&logLevel, "log-level", "", "log level (overrides app.log_level)")
	pf.Float64Var(&threshold, "threshold", 96.0, "similarity threshold in percent")
	pf.StringVar(&strategy, "strategy", config.StrategyGreedy, "grouping strategy: greedy or unionfind")
	pf.IntVar(&hashSize, "hash-size", 8, "pHash edge length (fingerprint has hash-size² bits)")
	pf.BoolVar(&useCache, "cache", false, "reuse fingerprints cached in the SQLite store")
	pf.BoolVar(&noProgress, "no-progress", false, "hide progress bars")

	rootCmd.AddCommand(reportCmd(), deleteCmd(), compareCmd(), hashCmd(), historyCmd(), cacheCmd(), serveCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// loadAppConfig reads the YAML config and applies command-line overrides.
func loadAppConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(
		filepath.Join(configDir, "app.yaml"),
		filepath.Join(configDir, "dedup.yaml"),
	)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Dedup.Threshold = threshold
	}
	if flags.Changed("strategy") {
		cfg.Dedup.Strategy = strategy
	}
	if flags.Changed("hash-size") {
		cfg.Dedup.HashSize = hashSize
	}
	if flags.Changed("cache") {
		cfg.Storage.CacheEnabled = useCache
	}
	if flags.Changed("no-progress") {
		cfg.Dedup.HideProgress = noProgress
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}

	if err := logging.Setup(cfg.App.LogLevel, cfg.App.LogFormat); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func reportCmd() *cobra.Command {
	var asJSON, listGroups bool
	cmd := &cobra.Command{
		Use:   "report <directory>",
		Short: "Group similar images and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			report, err := runDedup(cfg, args[0], services.OptionsFromConfig(cfg, models.ModeReport), asJSON)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(report)
			}
			fmt.Print(services.FormatSummary(report))
			if listGroups && report.TotalImages > 0 {
				fmt.Println()
				fmt.Print(services.FormatGroups(report))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&listGroups, "groups", false, "list the members of each duplicate group")
	return cmd
}

func deleteCmd() *cobra.Command {
	var asJSON, dryRun bool
	cmd := &cobra.Command{
		Use:   "delete <directory>",
		Short: "Delete all but one image in every group of similar images",
		Long: "Delete all but one image in every group of similar images.\n\n" +
			"Deletion is irreversible. The kept image is the first one in listing order,\n" +
			"not the best-quality one. Use --dry-run to review the plan first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			opts := services.OptionsFromConfig(cfg, models.ModeDelete)
			if cmd.Flags().Changed("dry-run") {
				opts.DryRun = dryRun
			}
			if !opts.DryRun {
				log.WithField("directory", args[0]).Warn("duplicates will be deleted from disk; kept file is chosen by listing order")
			}

			report, err := runDedup(cfg, args[0], opts, asJSON)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(report)
			}
			fmt.Print(services.FormatSummary(report))
			fmt.Print(services.FormatDeletion(report))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only print what would be deleted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

// runDedup runs the pipeline over dir, drawing progress bars unless hidden.
func runDedup(cfg *config.AppConfig, dir string, opts services.RunOptions, quiet bool) (*models.RunReport, error) {
	var storage *services.Storage
	if cfg.Storage.CacheEnabled {
		s, err := services.NewStorage(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		defer s.Close()
		storage = s
	}

	pipeline := services.NewPipeline(storage, cfg.Storage.CacheEnabled)

	if quiet || cfg.Dedup.HideProgress {
		return pipeline.Run(dir, opts, nil)
	}

	progress := make(chan services.ProgressEvent, 64)
	rendered := make(chan struct{})
	go renderProgress(progress, rendered)

	report, err := pipeline.Run(dir, opts, progress)
	close(progress)
	<-rendered
	return report, err
}

func compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <image> <image>",
		Short: "Print the Hamming distance and similarity of two images",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			a, err := services.ExtractFingerprint(args[0], cfg.Dedup.HashSize)
			if err != nil {
				return err
			}
			b, err := services.ExtractFingerprint(args[1], cfg.Dedup.HashSize)
			if err != nil {
				return err
			}
			dist, err := a.Distance(b)
			if err != nil {
				return fmt.Errorf("comparing fingerprints: %w", err)
			}
			sim := services.SimilarityPercent(dist, a.Bits())

			fmt.Printf("%s  %s\n%s  %s\n", a, args[0], b, args[1])
			fmt.Printf("Hamming distance: %d/%d bits\n", dist, a.Bits())
			fmt.Printf("Similarity: %.2f%%\n", sim)
			if sim >= cfg.Dedup.Threshold {
				fmt.Printf("Duplicates at threshold %g%%\n", cfg.Dedup.Threshold)
			} else {
				fmt.Printf("Distinct at threshold %g%%\n", cfg.Dedup.Threshold)
			}
			return nil
		},
	}
}

func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <image>...",
		Short: "Print the perceptual fingerprint of each image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			for _, path := range args {
				fp, err := services.ExtractFingerprint(path, cfg.Dedup.HashSize)
				if err != nil {
					log.WithFields(log.Fields{"path": path, "error": err}).Warn("skipping image")
					continue
				}
				fmt.Printf("%s  %s\n", fp, path)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded dedup runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			storage, err := services.NewStorage(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer storage.Close()

			runs, err := storage.ListRuns(limit)
			if err != nil {
				return err
			}
			fmt.Println(services.FormatRunsTable(runs))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to show")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the fingerprint cache",
	}

	var days int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached fingerprints not refreshed recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than-days") {
				days = cfg.Storage.CacheMaxAgeDays
			}
			storage, err := services.NewStorage(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer storage.Close()

			n, err := storage.Cleanup(time.Now().AddDate(0, 0, -days))
			if err != nil {
				return fmt.Errorf("pruning cache: %w", err)
			}
			fmt.Printf("Removed %d cached fingerprints older than %d days\n", n, days)
			return nil
		},
	}
	prune.Flags().IntVar(&days, "older-than-days", 30, "age in days (default storage.cache_max_age_days)")
	cmd.AddCommand(prune)
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			return server.Start(cfg)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
