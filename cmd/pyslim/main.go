package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pyslim/internal/config"
)

var (
	configPath   = flag.String("config", "", "Path to config file")
	entry        = flag.String("entry", "", "Comma-separated entry points (module names or .py paths)")
	sitePackages = flag.String("site-packages", "", "Path to a site-packages directory or virtualenv root")
	output       = flag.String("output", "", "Output root for the slimmed tree")
	symbolDB     = flag.String("symbol-db", "", "SQLite file recording each run's reachable set")
	watch        = flag.Bool("watch", false, "Re-run on file changes")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	version      = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("pyslim v%s\n", VERSION)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if len(cfg.EntryPoints) == 0 {
		fmt.Fprintln(os.Stderr, "no entry points: pass --entry or set entry_points in the config file")
		os.Exit(1)
	}

	app, err := NewApp(cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := app.Run(ctx)
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
	app.PrintSummary(report)

	if *watch {
		if err := app.WatchAndRun(ctx); err != nil && ctx.Err() == nil {
			slog.Error("watch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if report.Fatal {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if *entry != "" {
		cfg.EntryPoints = splitList(*entry)
	}
	if *sitePackages != "" {
		cfg.SitePackages = *sitePackages
	}
	if *output != "" {
		cfg.OutputRoot = *output
	}
	if *symbolDB != "" {
		cfg.SymbolDB = *symbolDB
	}
	if flag.NArg() > 0 {
		cfg.ProjectPaths = flag.Args()
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
