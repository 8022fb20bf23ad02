package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/maltedev/amazon-seller-scraper/internal/config"
	"github.com/maltedev/amazon-seller-scraper/internal/storage"
	"github.com/maltedev/amazon-seller-scraper/pkg/logger"
)

func main() {
	var (
		input        = flag.String("input", "", "CSV file produced by seller-scraper (default: OUTPUT_PATH)")
		output       = flag.String("output", "", "Cleaned CSV file (default: <input>_cleaned.csv)")
		keyColumn    = flag.String("key", "", "Column to deduplicate on")
		filterColumn = flag.String("filter-column", "", "Column to filter on")
		filterValue  = flag.String("filter-value", "", "Value rows must have in the filter column")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	opts := storage.CleanOptions{
		KeyColumn:    cfg.Clean.KeyColumn,
		FilterColumn: cfg.Clean.FilterColumn,
		FilterValue:  cfg.Clean.FilterValue,
	}
	if *keyColumn != "" {
		opts.KeyColumn = *keyColumn
	}
	if *filterColumn != "" {
		opts.FilterColumn = *filterColumn
	}
	if *filterValue != "" {
		opts.FilterValue = *filterValue
	}

	in := *input
	if in == "" {
		in = cfg.Output.Path
	}
	out := *output
	if out == "" {
		out = storage.DerivedPath(in, "cleaned")
	}

	logger.Info("Cleaning results",
		"input", in,
		"output", out,
		"key", opts.KeyColumn,
		"filter_column", opts.FilterColumn,
		"filter_value", opts.FilterValue)

	reports, err := storage.CleanFile(in, out, opts)
	if err != nil {
		logger.Error("Cleaning failed", "error", err)
		os.Exit(1)
	}

	for _, r := range reports {
		fmt.Printf("%s: %d rows in, %d rows out, %d removed\n", r.Stage, r.Input, r.Output, r.Removed)
	}
	fmt.Printf("Cleaned results written to %s\n", out)
}
