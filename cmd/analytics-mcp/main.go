// Command analytics-mcp serves the analytics tools over MCP stdio.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/judyrop/storefront-analytics/internal/analytics"
	"github.com/judyrop/storefront-analytics/internal/audit"
	"github.com/judyrop/storefront-analytics/internal/config"
	"github.com/judyrop/storefront-analytics/internal/database"
	"github.com/judyrop/storefront-analytics/internal/logger"
	"github.com/judyrop/storefront-analytics/internal/mcpserver"
	"github.com/judyrop/storefront-analytics/internal/querystats"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Stdout carries the MCP protocol. zap already writes to stderr and gorm
	// is pointed there too.
	zapLog, err := logger.New(cfg.Log.Level, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLog.Sync() }()

	db, err := database.Open(cfg.Database, zapLog, database.WithLogWriter(os.Stderr))
	if err != nil {
		zapLog.Fatal("Failed to connect to database", zap.Error(err))
	}

	stats := querystats.NewRecorder()
	observers, closeObservers := buildObservers(cfg, stats, zapLog)
	defer closeObservers()

	d := analytics.NewDispatcher(db,
		analytics.WithLogger(zapLog),
		analytics.WithObservers(observers...),
		analytics.WithTopProductsLimit(cfg.Analytics.TopProductsLimit),
		analytics.WithLowStockThreshold(cfg.Analytics.LowStockThreshold),
	)

	s := mcpserver.New(d, zapLog)
	mcpserver.AddStatsTool(s, stats)

	zapLog.Info("Serving analytics over MCP stdio")
	if err := server.ServeStdio(s); err != nil {
		zapLog.Error("MCP server stopped", zap.Error(err))
	}
}

// buildObservers always records latency into stats and adds the kafka audit
// publisher when brokers are configured. The returned func flushes the
// publisher.
func buildObservers(cfg *config.Config, stats *querystats.Recorder, log *zap.Logger) ([]analytics.Observer, func()) {
	observers := []analytics.Observer{stats}
	if len(cfg.Audit.Brokers) == 0 {
		return observers, func() {}
	}

	pub := audit.NewPublisher(cfg.Audit.Brokers, cfg.Audit.Topic, log)
	log.Info("Query audit enabled", zap.Strings("brokers", cfg.Audit.Brokers), zap.String("topic", cfg.Audit.Topic))
	return append(observers, pub), func() {
		if err := pub.Close(); err != nil {
			log.Warn("Failed to close audit publisher", zap.Error(err))
		}
	}
}
