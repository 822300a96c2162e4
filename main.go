package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"customer-map/bitable"
	"customer-map/config"
	"customer-map/server"
	"customer-map/services"
	"customer-map/storage"
	"customer-map/utils"
)

func main() {
	report := flag.Bool("report", false, "fetch once, print the insight report and write the export file, then exit")
	flag.Parse()

	cfg := config.Load()
	logger := utils.NewLogger(cfg.DebugRejections)

	logger.Info("=== Customer Map service starting ===")
	logger.Info("Config — page size: %d | max pages: %d | debug rejections: %v",
		cfg.PageSize, cfg.MaxPages, cfg.DebugRejections)

	if *report {
		runReport(cfg, logger)
		return
	}

	srv := server.New(cfg, logger)
	if err := srv.Run(); err != nil {
		logger.Error("Server exited: %v", err)
		os.Exit(1)
	}
}

// runReport is the one-shot pipeline: fetch every upstream row, transform,
// print the console insight report and write the record export.
func runReport(cfg *config.Config, logger *utils.Logger) {
	if !cfg.UpstreamReady() {
		logger.Error("Bitable credentials are not configured — set BITABLE_APP_ID/APP_SECRET/APP_TOKEN/TABLE_ID")
		os.Exit(1)
	}

	client := bitable.New(cfg, logger)
	raws, err := client.FetchAll(context.Background())
	if err != nil {
		logger.Error("Upstream fetch failed: %v", err)
		os.Exit(1)
	}
	if len(raws) == 0 {
		logger.Error("Upstream table returned no records. Exiting.")
		os.Exit(1)
	}

	transformer := services.NewTransformer(logger, cfg.DebugRejections)
	result := transformer.TransformAll(raws)

	if len(result.Accepted) == 0 {
		logger.Error("All %d records were rejected during transformation. Exiting.", result.Total)
		os.Exit(1)
	}

	for _, rej := range result.Rejected {
		logger.Debug("[report] rejected record %d (%s): %s", rej.Index, rej.UpstreamID, rej.Reason)
	}

	writer, err := storage.NewCSVWriter(cfg.ExportPath)
	if err != nil {
		logger.Error("Failed to create export writer: %v", err)
		os.Exit(1)
	}
	defer writer.Close()

	if err := writer.WriteRecords(result.Accepted); err != nil {
		logger.Error("Export write failed: %v", err)
	} else {
		logger.Info("Accepted records saved to %s", cfg.ExportPath)
	}

	insights := services.NewInsightService(logger)
	insights.Print(insights.Summarize(result.Accepted))

	fmt.Printf("  Done. %d accepted, %d rejected → %s\n\n",
		len(result.Accepted), len(result.Rejected), cfg.ExportPath)
}
