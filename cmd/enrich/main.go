package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
	"github.com/maltedev/amazon-seller-scraper/internal/config"
	"github.com/maltedev/amazon-seller-scraper/internal/contact"
	"github.com/maltedev/amazon-seller-scraper/internal/enrich"
	"github.com/maltedev/amazon-seller-scraper/internal/models"
	"github.com/maltedev/amazon-seller-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-seller-scraper/internal/scraper"
	"github.com/maltedev/amazon-seller-scraper/internal/storage"
	"github.com/maltedev/amazon-seller-scraper/pkg/logger"
)

type options struct {
	input     string
	output    string
	overwrite bool
	clean     bool
}

func main() {
	var (
		input     = flag.String("input", "", "CSV file with a seller_link column (default: OUTPUT_PATH)")
		output    = flag.String("output", "", "Enriched CSV file (default: <input>_enriched.csv)")
		overwrite = flag.Bool("overwrite", false, "Re-resolve rows that already have a company name")
		engine    = flag.String("engine", "", "Browser engine: playwright or static")
		headless  = flag.Bool("headless", true, "Run browser in headless mode")
		clean     = flag.Bool("clean", false, "Deduplicate by seller_link and apply the configured filter before enriching")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var headlessFlag *bool
	if setFlags(flag.CommandLine)["headless"] {
		headlessFlag = headless
	}
	applyFlags(cfg, *engine, headlessFlag)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	opts := resolvePaths(cfg, options{input: *input, output: *output, overwrite: *overwrite, clean: *clean})
	if err := run(ctx, cfg, logger, opts); err != nil {
		logger.Error("Enrichment failed", "error", err)
		os.Exit(1)
	}
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func applyFlags(cfg *config.Config, engine string, headless *bool) {
	if engine != "" {
		cfg.Browser.Engine = engine
	}
	if headless != nil {
		cfg.Browser.Headless = *headless
	}
}

// resolvePaths fills the default input and output paths.
func resolvePaths(cfg *config.Config, opts options) options {
	if opts.input == "" {
		opts.input = cfg.Output.Path
	}
	if opts.output == "" {
		opts.output = storage.DerivedPath(opts.input, "enriched")
	}
	return opts
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts options) error {
	table, err := storage.LoadCSV(opts.input)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", opts.input, err)
	}

	if opts.clean {
		cleaned, reports, err := storage.Clean(table, storage.CleanOptions{
			KeyColumn:    models.ColSellerLink,
			FilterColumn: cfg.Clean.FilterColumn,
			FilterValue:  cfg.Clean.FilterValue,
		})
		if err != nil {
			return fmt.Errorf("failed to clean input: %w", err)
		}
		for _, r := range reports {
			fmt.Printf("%s: %d rows in, %d rows out, %d removed\n", r.Stage, r.Input, r.Output, r.Removed)
		}
		table = cleaned
	}

	driver, err := newDriver(cfg)
	if err != nil {
		return err
	}
	defer driver.Close()

	inferrer, err := newInferrer(cfg, logger)
	if err != nil {
		return err
	}

	resolver, err := scraper.NewSellerResolver(scraper.DefaultLayout(cfg.Scraper.BaseURL), scraper.ResolverOptions{
		OperatorName: cfg.Scraper.OperatorName,
		Inferrer:     inferrer,
		InferTimeout: cfg.Contact.Timeout,
		CacheSize:    cfg.Scraper.SellerCache,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create seller resolver: %w", err)
	}

	enricher := enrich.New(driver, resolver, enrich.Options{
		MaxRetries:  cfg.Scraper.MaxRetries,
		SettleDelay: cfg.Scraper.SettleDelay,
		Limiter:     ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		Overwrite:   opts.overwrite,
		Checkpoint: func(t storage.Table) error {
			return storage.WriteCSV(opts.output, t)
		},
		Logger: logger,
	})

	res, err := enricher.Run(ctx, &table)
	if err != nil {
		return err
	}

	if err := storage.WriteCSV(opts.output, table); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.output, err)
	}

	fmt.Printf("Rows queued: %d  Enriched: %d  Failed: %d\n", res.Tasks, res.Enriched, res.Failed)
	fmt.Printf("Enriched results written to %s\n", opts.output)
	return nil
}

func newDriver(cfg *config.Config) (browser.Driver, error) {
	if cfg.Browser.Engine == "static" {
		return browser.NewStatic(browser.StaticOptions{
			UserAgent:      cfg.Browser.UserAgent,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			Timeout:        cfg.Browser.Timeout,
		}), nil
	}

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      cfg.Browser.UserAgent,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
		ProxyServer:    cfg.Browser.ProxyServer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return b, nil
}

func newInferrer(cfg *config.Config, logger *slog.Logger) (contact.Inferrer, error) {
	if !cfg.Contact.Enabled {
		return nil, nil
	}

	client := contact.NewOpenAIClient(&http.Client{Timeout: cfg.Contact.Timeout}, contact.OpenAIConfig{
		APIKey:      cfg.Contact.APIKey,
		BaseURL:     cfg.Contact.BaseURL,
		Model:       cfg.Contact.Model,
		Temperature: cfg.Contact.Temperature,
		Timeout:     cfg.Contact.Timeout,
	}, logger)

	cached, err := contact.NewCachedInferrer(client, cfg.Contact.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create contact cache: %w", err)
	}
	return cached, nil
}
