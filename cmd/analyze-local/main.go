package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/draiimon/PanicSense-Final-sub000/app/usage"
	"github.com/draiimon/PanicSense-Final-sub000/app/worker"
)

// Runs one CSV file or one text through the analysis worker without the
// HTTP server and prints the result as JSON.
func main() {
	file := flag.String("file", "", "CSV file to analyze")
	text := flag.String("text", "", "single text to analyze")
	flag.Parse()
	if (*file == "") == (*text == "") {
		log.Fatalf("exactly one of -file or -text is required")
	}

	start := time.Now()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(cfg.Logs)
	manager := worker.NewManager(cfg.Worker, usage.NewTracker(cfg.Quota.DailyLimit), worker.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *text != "" {
		analysis, err := manager.AnalyzeOne(ctx, *text)
		if err != nil {
			log.Fatalf("analyze: %v", err)
		}
		enc.Encode(analysis)
		return
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}
	outcome, err := manager.StartBatchJob(ctx, worker.BatchJob{
		Data:         data,
		OriginalName: filepath.Base(*file),
		SessionID:    "local",
		OnProgress: func(p models.WorkerProgress) {
			logger.Info("progress", "processed", p.Processed, "stage", p.Stage)
		},
		OnBatch: func(b models.BatchEvent) {
			logger.Info("batch complete", "batch", b.BatchNumber, "of", b.TotalBatches, "rows", len(b.Results))
		},
	})
	if err != nil {
		log.Fatalf("batch job: %v", err)
	}
	os.Remove(outcome.TempPath)

	enc.Encode(map[string]any{
		"results":     outcome.Results,
		"metrics":     outcome.Metrics,
		"recordCount": outcome.RecordCount,
		"truncated":   outcome.Truncated(),
		"source":      outcome.Source,
	})
	log.Printf("Took %s", time.Since(start))
}
