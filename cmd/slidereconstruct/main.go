// Command slidereconstruct converts a flattened slide-deck PDF into editable
// layout records: a JSON layout plus image assets, ready for a presentation
// generator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"slide-reconstructor/internal/config"
	"slide-reconstructor/internal/extract"
	"slide-reconstructor/internal/logger"
	"slide-reconstructor/internal/pipeline"
	"slide-reconstructor/internal/slide"
	"slide-reconstructor/internal/vision"
	"slide-reconstructor/internal/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		inputPath  = flag.String("input", "", "input PDF file (required)")
		outputDir  = flag.String("output", "output", "output directory for layout.json and assets")
		configPath = flag.String("config", "", "configuration file path")
		workDir    = flag.String("workdir", "", "working directory for render cache and extracted images (default: temp)")
		noVision   = flag.Bool("no-vision", false, "disable the vision model, run geometry-only")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: slidereconstruct -input deck.pdf [-output dir] [-no-vision]")
		flag.PrintDefaults()
		return 2
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(*logLevel)
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Close()

	manager, err := config.NewManager(*configPath)
	if err != nil {
		logger.Error("failed to create config manager", err)
		return 1
	}
	if err := manager.Load(); err != nil {
		logger.Error("failed to load configuration", err)
		return 1
	}
	cfg := manager.Get()

	if *workDir == "" {
		tmp, err := os.MkdirTemp("", "slidereconstruct_*")
		if err != nil {
			logger.Error("failed to create working directory", err)
			return 1
		}
		defer os.RemoveAll(tmp)
		*workDir = tmp
	}
	cfg.WorkDirectory = *workDir

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := extract.NewBackend(*inputPath, *workDir)
	if err != nil {
		logger.Error("cannot open input", err, logger.String("file", *inputPath))
		return 1
	}

	renderer := extract.NewRenderer(*workDir)

	var analyzer pipeline.LayoutAnalyzer
	if cfg.VisionEnabled && !*noVision {
		a, err := vision.NewAnalyzer(ctx, cfg, manager.GetAPIKey(), manager.GetBaseURL())
		if err != nil {
			logger.Warn("vision unavailable, running geometry-only", logger.Err(err))
		} else {
			analyzer = a
		}
	} else {
		logger.Info("vision disabled, running geometry-only")
	}

	startedAt := time.Now()
	p := pipeline.New(cfg, *inputPath, backend, renderer, analyzer)
	results := p.Run(ctx)

	records := make([]*slide.LayoutRecord, 0, len(results))
	for _, r := range results {
		if r.Record != nil {
			records = append(records, r.Record)
		}
	}

	if len(records) > 0 {
		w := writer.NewJSONWriter(*outputDir)
		if err := w.Write(records); err != nil {
			logger.Error("failed to write layout", err)
			return 1
		}
	} else {
		logger.Error("no pages produced a layout", nil, logger.Int("pages", len(results)))
	}

	report := pipeline.NewRunReport(*inputPath, startedAt, results)
	reportPath := filepath.Join(*outputDir, "run_report.json")
	if err := report.Save(reportPath); err != nil {
		logger.Warn("failed to save run report", logger.Err(err))
	}

	logger.Info("done",
		logger.Int("slides", len(records)),
		logger.Int("failed", report.FailedPages),
		logger.String("output", *outputDir),
		logger.String("elapsed", time.Since(startedAt).String()))

	if len(records) == 0 {
		return 1
	}
	return 0
}
