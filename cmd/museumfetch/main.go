package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/museumfetch/internal/config"
	"github.com/IshaanNene/museumfetch/internal/engine"
	"github.com/IshaanNene/museumfetch/internal/fetcher"
	"github.com/IshaanNene/museumfetch/internal/observability"
	"github.com/IshaanNene/museumfetch/internal/pipeline"
	"github.com/IshaanNene/museumfetch/internal/storage"
	"github.com/IshaanNene/museumfetch/internal/types"
)

var (
	cfgFile      string
	verbose      bool
	workers      int
	dedupeCities bool
	keepHTML     bool
	outputPath   string
	outputFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "museumfetch",
		Short: "museumfetch: museum attendance collector for Wikipedia",
		Long: `museumfetch reads the Wikipedia list of most visited museums, enriches
every museum with its infobox and its city's population, and stores the
result in SQLite or MongoDB.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd(), collectCmd(), configCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand: collect and persist under an import log.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [page-title]",
		Short: "Collect the museum list and store it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runImport,
	}
	addCollectorFlags(cmd)
	return cmd
}

// collectCmd creates the "collect" subcommand: collect without touching storage.
func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect [page-title]",
		Short: "Collect the museum list and print or export it",
		Example: `  museumfetch collect
  museumfetch collect --format csv --output museums.csv
  museumfetch collect List_of_most_visited_art_museums --format jsonl`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCollect,
	}
	addCollectorFlags(cmd)
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "", "export format (json, jsonl, csv); prints a table when empty")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "export file path (stdout when empty)")
	return cmd
}

func addCollectorFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "detail fetch workers (0 keeps the configured value)")
	cmd.Flags().BoolVar(&dedupeCities, "dedupe-cities", false, "fetch each city page once")
	cmd.Flags().BoolVar(&keepHTML, "keep-html", false, "write every fetched page to debug.html_dir")
}

// app holds the components shared by run and collect.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	client    *fetcher.Client
	collector *engine.Collector
}

func newApp(cmd *cobra.Command, args []string) (*app, string, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cmd, cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	if err := config.ValidateCredentials(cfg); err != nil {
		return nil, "", err
	}

	logger := setupLogger(cfg.Logging)
	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	governor := fetcher.NewGovernor(cfg.RateLimit.Calls, cfg.RateLimit.Period)
	client := fetcher.NewClient(cfg, governor, metrics, logger)
	collector := engine.New(client, engine.Options{
		Workers:      cfg.Collector.Workers,
		DedupeCities: cfg.Collector.DedupeCities,
	}, metrics, logger)

	pageTitle := cfg.Collector.PageTitle
	if len(args) > 0 {
		pageTitle = args[0]
	}

	logger.Info("collector configured",
		"page", pageTitle,
		"workers", cfg.Collector.Workers,
		"rate_limit", fmt.Sprintf("%d/%s", cfg.RateLimit.Calls, cfg.RateLimit.Period),
		"dedupe_cities", cfg.Collector.DedupeCities,
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		client:    client,
		collector: collector,
	}, pageTitle, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, finishing in-flight fetches...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	a, pageTitle, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.client.Close()

	store, err := storage.Open(a.cfg.Storage, a.logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close storage", "error", err)
		}
	}()

	ctx, stop := signalContext(a.logger)
	defer stop()

	importer := pipeline.NewImporter(store, a.collector, a.metrics, a.logger)

	start := time.Now()
	report, err := importer.Run(ctx, pageTitle)
	elapsed := time.Since(start)
	if err != nil {
		if report != nil {
			fmt.Printf("\nImport %s failed after %s: %v\n", report.RunID, elapsed.Round(time.Millisecond), err)
		}
		return err
	}

	stats := a.collector.Stats()
	c := report.Counters
	fmt.Printf("\nImport %s complete in %s\n", report.RunID, elapsed.Round(time.Millisecond))
	fmt.Printf("   Museums:    %d collected, %d detail tasks failed, %d skipped\n", stats.Museums, stats.FailedTasks, stats.SkippedTasks)
	fmt.Printf("   Countries:  %d inserted, %d updated\n", c.InsertedCountries, c.UpdatedCountries)
	fmt.Printf("   Cities:     %d inserted, %d updated\n", c.InsertedCities, c.UpdatedCities)
	fmt.Printf("   Museums:    %d inserted, %d updated\n", c.InsertedMuseums, c.UpdatedMuseums)
	fmt.Printf("   Attributes: %d inserted, %d updated\n", c.InsertedAttributes, c.UpdatedAttributes)
	fmt.Printf("   Storage:    %s\n", store.Name())
	return nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	a, pageTitle, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.client.Close()

	ctx, stop := signalContext(a.logger)
	defer stop()

	records, err := a.collector.Collect(ctx, pageTitle)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	switch {
	case outputFormat == "" && outputPath == "":
		renderTable(records)
		return nil
	case outputFormat == "":
		outputFormat = storage.FormatJSON
	}

	format := strings.ToLower(outputFormat)
	if outputPath == "" {
		return storage.Export(os.Stdout, records, format)
	}
	if err := storage.ExportFile(outputPath, records, format); err != nil {
		return err
	}
	a.logger.Info("records exported", "path", outputPath, "format", format, "count", len(records))
	return nil
}

func renderTable(records []*types.MuseumRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Museum", "Visitors", "City", "Country", "Population", "Attributes"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Name,
			optional(r.VisitorCount),
			r.EffectiveCity(),
			r.EffectiveCountry(),
			optional(r.EffectivePopulation()),
			len(r.Attributes),
		})
	}
	t.AppendFooter(table.Row{"Total", len(records)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func optional(v *int64) string {
	if v == nil {
		return types.NotAvailable
	}
	return fmt.Sprintf("%d", *v)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("museumfetch %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			fmt.Printf("Wikipedia:\n")
			fmt.Printf("  API URL:           %s\n", cfg.Wikipedia.APIURL)
			fmt.Printf("  Auth URL:          %s\n", cfg.Wikipedia.AuthURL)
			fmt.Printf("  Client ID:         %s\n", mask(cfg.Wikipedia.ClientID))
			fmt.Printf("  Client Secret:     %s\n", mask(cfg.Wikipedia.ClientSecret))
			fmt.Printf("  User Agent:        %s\n", cfg.Wikipedia.UserAgent)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Wikipedia.RequestTimeout)

			fmt.Printf("\nRate Limit:\n")
			fmt.Printf("  Calls:             %d per %s\n", cfg.RateLimit.Calls, cfg.RateLimit.Period)

			fmt.Printf("\nCollector:\n")
			fmt.Printf("  Page Title:        %s\n", cfg.Collector.PageTitle)
			fmt.Printf("  Workers:           %d\n", cfg.Collector.Workers)
			fmt.Printf("  Dedupe Cities:     %v\n", cfg.Collector.DedupeCities)

			fmt.Printf("\nDebug:\n")
			fmt.Printf("  Keep HTML:         %v\n", cfg.Debug.KeepHTML)
			fmt.Printf("  HTML Dir:          %s\n", cfg.Debug.HTMLDir)

			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			switch cfg.Storage.Type {
			case "mongodb":
				fmt.Printf("  Mongo URI:         %s\n", cfg.Storage.MongoURI)
				fmt.Printf("  Database:          %s\n", cfg.Storage.MongoDatabase)
			default:
				fmt.Printf("  Path:              %s\n", cfg.Storage.Path)
			}

			fmt.Printf("\nLogging:\n")
			fmt.Printf("  Level:             %s\n", cfg.Logging.Level)
			fmt.Printf("  Format:            %s\n", cfg.Logging.Format)

			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			fmt.Printf("  Path:              %s\n", cfg.Metrics.Path)

			return nil
		},
	}
}

func mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "****"
}

// setupLogger creates a structured logger writing to stderr.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	if workers > 0 {
		cfg.Collector.Workers = workers
	}
	if cmd.Flags().Changed("dedupe-cities") {
		cfg.Collector.DedupeCities = dedupeCities
	}
	if cmd.Flags().Changed("keep-html") {
		cfg.Debug.KeepHTML = keepHTML
	}
}
