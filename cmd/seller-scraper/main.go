package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
	"github.com/maltedev/amazon-seller-scraper/internal/config"
	"github.com/maltedev/amazon-seller-scraper/internal/contact"
	"github.com/maltedev/amazon-seller-scraper/internal/database"
	"github.com/maltedev/amazon-seller-scraper/internal/models"
	"github.com/maltedev/amazon-seller-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-seller-scraper/internal/scraper"
	"github.com/maltedev/amazon-seller-scraper/internal/server"
	"github.com/maltedev/amazon-seller-scraper/internal/storage"
	"github.com/maltedev/amazon-seller-scraper/pkg/logger"
)

func main() {
	var (
		keyword    = flag.String("keyword", "", "Search keyword")
		pages      = flag.Int("pages", -1, "Maximum result pages (0 = all)")
		perPage    = flag.Int("per-page", -1, "Maximum entries per page (0 = all)")
		output     = flag.String("output", "", "Output file (.csv, .jsonl or .sqlite)")
		headless   = flag.Bool("headless", true, "Run browser in headless mode")
		engine     = flag.String("engine", "", "Browser engine: playwright or static")
		statusAddr = flag.String("status-addr", "", "Serve /status, /healthz and /metrics on this address")
		clean      = flag.Bool("clean", false, "Write a deduplicated, filtered copy of the output after the run")
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
	applyFlags(cfg, *keyword, *pages, *perPage, *output, *engine, *statusAddr, headlessFlag)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Scraper.Keyword == "" {
		fmt.Fprintln(os.Stderr, "A search keyword is required: use -keyword or SCRAPER_KEYWORD.")
		flag.Usage()
		os.Exit(2)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing current entry")
		cancel()
	}()

	if err := run(ctx, cfg, logger, *clean); err != nil {
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

// setFlags reports which flags were given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// applyFlags overrides config values with flags. A nil headless leaves
// BROWSER_HEADLESS in charge.
func applyFlags(cfg *config.Config, keyword string, pages, perPage int, output, engine, statusAddr string, headless *bool) {
	if keyword != "" {
		cfg.Scraper.Keyword = keyword
	}
	if pages >= 0 {
		cfg.Scraper.MaxPages = pages
	}
	if perPage >= 0 {
		cfg.Scraper.MaxPerPage = perPage
	}
	if output != "" {
		cfg.Output.Path = output
	}
	if engine != "" {
		cfg.Browser.Engine = engine
	}
	if statusAddr != "" {
		cfg.Server.Addr = statusAddr
	}
	if headless != nil {
		cfg.Browser.Headless = *headless
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, clean bool) error {
	runInfo := models.RunInfo{ID: uuid.NewString(), Keyword: cfg.Scraper.Keyword, StartedAt: time.Now()}
	logger = logger.With("run_id", runInfo.ID)
	logger.Info("Starting seller scraper",
		"keyword", runInfo.Keyword,
		"engine", cfg.Browser.Engine,
		"output", cfg.Output.Path)

	driver, err := newDriver(cfg)
	if err != nil {
		return err
	}
	defer driver.Close()

	sink, err := storage.NewSink(cfg.Output.Path, cfg.Output.Columns)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	var (
		hooks  []storage.Hook
		outbox server.OutboxCounter
	)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{DSN: cfg.Database.DSN()})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		hooks = append(hooks, database.NewRecordStore(db, runInfo, logger).Save)
		outbox = database.NewOutboxRepository(db)
	}

	results := storage.NewResultSet(sink, logger, hooks...)

	inferrer, err := newInferrer(cfg, logger)
	if err != nil {
		return err
	}

	metrics := scraper.NewMetrics()
	layout := scraper.DefaultLayout(cfg.Scraper.BaseURL)

	resolver, err := scraper.NewSellerResolver(layout, scraper.ResolverOptions{
		OperatorName: cfg.Scraper.OperatorName,
		Inferrer:     inferrer,
		InferTimeout: cfg.Contact.Timeout,
		CacheSize:    cfg.Scraper.SellerCache,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	walker := scraper.NewWalker(driver, layout, scraper.NewProductVisitor(layout, resolver, logger), results, scraper.WalkerOptions{
		MaxPages:    cfg.Scraper.MaxPages,
		MaxPerPage:  cfg.Scraper.MaxPerPage,
		SettleDelay: cfg.Scraper.SettleDelay,
		Limiter:     ratelimit.NewSimpleRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		Metrics:     metrics,
		Logger:      logger,
	})

	if cfg.Server.Addr != "" {
		srv := server.New(server.Options{
			Addr:            cfg.Server.Addr,
			Status:          walker.Stats(),
			Registry:        metrics.Registry,
			Outbox:          outbox,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Logger:          logger,
		})
		srvCtx, stopServer := context.WithCancel(context.Background())
		defer stopServer()
		go func() {
			if err := srv.Start(srvCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server failed", "error", err)
			}
		}()
	}

	snap, err := walker.Run(ctx, cfg.Scraper.Keyword)
	if err != nil {
		return err
	}

	fmt.Printf("Pages: %d  Entries: %d  Records: %d  Skipped: %d  Failed: %d\n",
		snap.Pages, snap.Entries, snap.Records, snap.Skipped, snap.Failed)
	fmt.Printf("Results written to %s\n", cfg.Output.Path)

	if clean {
		return cleanOutput(cfg)
	}
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
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
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

func cleanOutput(cfg *config.Config) error {
	if !strings.EqualFold(filepath.Ext(cfg.Output.Path), ".csv") {
		fmt.Println("Skipping cleanup: only CSV output can be cleaned")
		return nil
	}

	out := storage.DerivedPath(cfg.Output.Path, "cleaned")
	reports, err := storage.CleanFile(cfg.Output.Path, out, storage.CleanOptions{
		KeyColumn:    cfg.Clean.KeyColumn,
		FilterColumn: cfg.Clean.FilterColumn,
		FilterValue:  cfg.Clean.FilterValue,
	})
	if err != nil {
		return fmt.Errorf("failed to clean results: %w", err)
	}

	for _, r := range reports {
		fmt.Printf("%s: %d rows in, %d rows out, %d removed\n", r.Stage, r.Input, r.Output, r.Removed)
	}
	fmt.Printf("Cleaned results written to %s\n", out)
	return nil
}
