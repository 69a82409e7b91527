package common

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/fpds-ingest/models"
	"github.com/dtnitsch/fpds-ingest/pkg/metrics"
)

// LoadConfig reads the configuration named by --config and applies the
// global flag overrides.
func LoadConfig(c *cli.Context) (*models.Config, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("db") {
		cfg.DatabaseDSN = c.String("db")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("threads") {
		cfg.Backfill.Threads = c.Int("threads")
	}
	return cfg, nil
}

// Logger builds the command logger from --quiet and --verbose.
func Logger(c *cli.Context) *slog.Logger {
	return NewLogger(c.Bool("quiet"), c.Bool("verbose"))
}

// ServeMetrics exposes expvar counters on addr in the background. An empty
// addr disables it.
func ServeMetrics(addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(addr); err != nil {
			logger.Warn("Metrics listener stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("Serving metrics", "url", fmt.Sprintf("http://%s/debug/vars", addr))
}
