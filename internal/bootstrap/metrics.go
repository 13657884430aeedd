package bootstrap

import (
	"log/slog"
	"os"

	"github.com/target/sessionauth/config"
	"github.com/target/sessionauth/internal/observability/statsd"
)

// BuildMetrics returns the StatsD client used across services.
// A dial failure is logged and yields a disabled client so startup is not blocked on metrics.
func BuildMetrics(cfg config.MetricsConfig, logger *slog.Logger) *statsd.Client {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsEnabled() {
		return nil
	}

	tags := map[string]string{}
	if host, err := os.Hostname(); err == nil {
		tags["host"] = host
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled:    true,
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		Logger:     logger,
		GlobalTags: tags,
	})
	if err != nil {
		logger.Warn("metrics disabled: statsd client init failed", "error", err, "address", cfg.StatsdAddress)
		return nil
	}

	logger.Info("metrics enabled", "address", cfg.StatsdAddress, "prefix", cfg.Prefix)
	return client
}
