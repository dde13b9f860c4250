package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/JakeFAU/govjob-scanner/internal/config"
	"github.com/JakeFAU/govjob-scanner/internal/export"
	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/logging"
	"github.com/JakeFAU/govjob-scanner/internal/scan"
	"github.com/JakeFAU/govjob-scanner/internal/server"
)

const noMatches = "No jobs found with the given keywords."

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jobscanner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "Path to config file")
	keywordsFlag := fs.String("keywords", "", "Comma-separated keywords to scan for")
	outPath := fs.String("out", "", "Write results as CSV to this path (- for stdout)")
	serve := fs.Bool("serve", false, "Run the HTTP API instead of a single scan")
	envFile := fs.String("env-file", ".env", "Load JOBSCAN_* variables from this file if it exists")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	keywords := jobs.ParseKeywords(*keywordsFlag)
	if !*serve && len(keywords) == 0 {
		fmt.Fprintln(stderr, "either -keywords or -serve is required")
		fs.Usage()
		return 2
	}

	if err := loadEnv(*envFile); err != nil {
		fmt.Fprintf(stderr, "load env file failed: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(stderr, "logger init failed: %v\n", err)
		return 1
	}
	zap.ReplaceGlobals(logger)

	app, err := server.Build(&cfg, logger)
	if err != nil {
		logger.Error("build failed", zap.Error(err))
		return 1
	}
	defer app.Close()

	if *serve {
		if err := app.Serve(ctx); err != nil {
			logger.Error("serve failed", zap.Error(err))
			return 1
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	scanner := app.Scanner()
	logger.Info("scan started",
		zap.Int("portals", len(scanner.Portals())),
		zap.Stringer("keywords", keywords),
	)
	result := scanner.Run(ctx, keywords)

	if err := report(stdout, stderr, result, *outPath); err != nil {
		logger.Error("write results failed", zap.Error(err))
		return 1
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return 130
	}
	return 0
}

// loadEnv applies a dotenv file without overriding variables already set. A missing file is fine.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// report prints the summary and writes the CSV export when requested. With -out - the CSV owns
// stdout and the summary moves to stderr.
func report(stdout, stderr io.Writer, result scan.Result, outPath string) error {
	summaryTo := stdout
	if outPath == "-" {
		summaryTo = stderr
		if err := export.WriteCSV(stdout, result.Records); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	} else if outPath != "" {
		if err := writeCSVFile(outPath, result.Records); err != nil {
			return err
		}
	}
	return printSummary(summaryTo, result)
}

func writeCSVFile(path string, records []jobs.JobRecord) (err error) {
	// #nosec G304 -- the operator chooses the output path.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	if err := export.WriteCSV(f, records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printSummary(w io.Writer, result scan.Result) error {
	if len(result.Records) == 0 {
		if _, err := fmt.Fprintln(w, noMatches); err != nil {
			return fmt.Errorf("print summary: %w", err)
		}
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TITLE\tSOURCE\tPOSTED\tLAST DATE\tLINK")
		for _, r := range result.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				truncate(r.Title, 60), r.Source, jobs.Value(r.PostedDate), jobs.Value(r.LastDate), r.Link)
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("print summary: %w", err)
		}
		fmt.Fprintf(w, "\n%d job(s) found.\n", len(result.Records))
	}
	if failures := result.Failures(); failures > 0 {
		fmt.Fprintf(w, "%d of %d portal task(s) failed; see logs for details.\n", failures, len(result.Outcomes))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
