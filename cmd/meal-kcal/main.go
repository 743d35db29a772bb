// cmd/meal-kcal/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"meal-kcal/internal/artifacts"
	"meal-kcal/internal/calories"
	"meal-kcal/internal/config"
	"meal-kcal/internal/dataset"
	"meal-kcal/internal/nutrition"
	"meal-kcal/internal/pipeline"
	"meal-kcal/internal/server"
	"meal-kcal/internal/storage"
	"meal-kcal/internal/vision"
)

var (
	mode         = flag.String("mode", config.ModeRun, "Mode: recognize, report, run or serve")
	envFile      = flag.String("env", ".env", "Optional .env file")
	input        = flag.String("input", "data/linked_dataset.csv", "Linked dataset CSV")
	recognitions = flag.String("recognitions", "", "Recognition CSV to report from instead of the database")
	dataDir      = flag.String("data-dir", "", "Output directory (overrides DATA_DIR)")
	manual       = flag.Bool("manual", true, "Prompt on the terminal when recognition fails")
	transport    = flag.String("transport", "http", "Transport mode: http")
	port         = flag.Int("port", 8011, "Port for HTTP transport")
	host         = flag.String("host", "0.0.0.0", "Host address")
	address      = flag.String("address", "", "Address (alias for host)")
	debug        = flag.Bool("debug", false, "Development logging")
	version      = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("meal-kcal version 1.0.0")
		os.Exit(0)
	}

	log, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("meal-kcal failed", zap.String("mode", *mode), zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(log *zap.Logger) error {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	// Credentials are checked before any image or row is touched.
	if err := cfg.Validate(*mode); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	stor, err := storage.NewSQLiteStorage(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer stor.Close()

	runner, calc, err := buildRunner(ctx, cfg, stor, log)
	if err != nil {
		return err
	}

	switch *mode {
	case config.ModeRecognize:
		return recognize(ctx, cfg, runner, log)
	case config.ModeReport:
		return report(ctx, cfg, runner, stor, log)
	case config.ModeRun:
		if err := recognize(ctx, cfg, runner, log); err != nil {
			return err
		}
		return report(ctx, cfg, runner, stor, log)
	case config.ModeServe:
		return serve(ctx, runner, calc, stor, log)
	}
	return fmt.Errorf("unknown mode %q", *mode)
}

func buildRunner(ctx context.Context, cfg *config.Config, stor *storage.SQLiteStorage, log *zap.Logger) (*pipeline.Runner, *calories.Calculator, error) {
	var store pipeline.RecognitionStore = stor
	if *recognitions != "" {
		mem, err := loadRecognitionCSV(ctx, *recognitions)
		if err != nil {
			return nil, nil, err
		}
		store = mem
	}

	var model vision.Model
	if *mode != config.ModeReport {
		switch cfg.VisionBackend {
		case config.BackendGateway:
			model = vision.NewGatewayModel(cfg.ProxyURL, cfg.ProxyAPIKey, cfg.OpenRouterModel)
		default:
			m, err := vision.NewGeminiModel(ctx, cfg.GoogleAPIKey, cfg.VisionModel)
			if err != nil {
				return nil, nil, err
			}
			model = m
		}
	}

	var fallback vision.ManualEntry = vision.NoManualEntry{}
	if *manual && *mode != config.ModeServe {
		fallback = vision.NewTerminalEntry(os.Stdin, os.Stdout)
	}
	recognizer := vision.NewRecognizer(model, vision.NewGate(cfg.RequestInterval), fallback, log)

	usda := nutrition.NewUSDAClient(cfg.USDAAPIKey,
		nutrition.WithBaseURL(cfg.USDABaseURL),
		nutrition.WithRatePerHour(cfg.LookupRatePerHour, cfg.LookupConcurrency),
	)
	calc := calories.NewCalculator(nutrition.NewCachedLookup(usda), cfg.LookupConcurrency, log)

	opts := pipeline.Options{ProcessedDir: cfg.ProcessedDir(), Store: store, Log: log}
	if cfg.ArtifactBucket != "" {
		sink, err := artifacts.NewS3SinkFromEnv(ctx, cfg.AWSRegion, cfg.ArtifactBucket, "processed")
		if err != nil {
			return nil, nil, err
		}
		opts.Mirror = sink
	}
	return pipeline.NewRunner(recognizer, calc, opts), calc, nil
}

func loadRecognitionCSV(ctx context.Context, path string) (*pipeline.MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recognitions: %w", err)
	}
	defer f.Close()

	recs, err := dataset.ReadRecognitions(f)
	if err != nil {
		return nil, err
	}
	mem := pipeline.NewMemoryStore()
	for _, rec := range recs {
		if err := mem.PutRecognition(ctx, rec); err != nil {
			return nil, err
		}
	}
	return mem, nil
}

func recognize(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, log *zap.Logger) error {
	plans, err := dataset.ReadLinkedFile(*input)
	if err != nil {
		return err
	}
	if _, err := runner.RecognizeAll(ctx, plans, nil); err != nil {
		return err
	}

	// The table covers every image recognized so far, not just this run.
	recs, err := runner.Recognitions(ctx)
	if err != nil {
		return err
	}
	if err := dataset.WriteRecognitionsFile(cfg.RecognitionCSV(), recs); err != nil {
		return err
	}
	log.Info("recognition table written", zap.String("path", cfg.RecognitionCSV()), zap.Int("images", len(recs)))
	return nil
}

func report(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, stor *storage.SQLiteStorage, log *zap.Logger) error {
	plans, err := dataset.ReadLinkedFile(*input)
	if err != nil {
		return err
	}
	reports, err := runner.Report(ctx, plans)
	if err != nil {
		return err
	}
	// CSVs first so a failed SQLite save cannot lose them.
	paths, err := dataset.WriteReportFiles(cfg.ReportDir(), reports)
	if err != nil {
		return err
	}
	log.Info("user reports written", zap.String("dir", cfg.ReportDir()), zap.Int("users", len(paths)))
	runner.SaveReports(ctx, reports, stor)
	return nil
}

func serve(ctx context.Context, runner *pipeline.Runner, calc *calories.Calculator, stor *storage.SQLiteStorage, log *zap.Logger) error {
	// Use address if provided, otherwise use host
	hostAddr := *host
	if *address != "" {
		hostAddr = *address
	}

	srv, err := server.NewMealKcalServer(&server.Config{
		Transport: *transport,
		Host:      hostAddr,
		Port:      *port,
	}, runner, calc, stor, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
