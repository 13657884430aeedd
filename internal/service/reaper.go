package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/sessionauth/config"
	"github.com/target/sessionauth/internal/observability/metrics"
	"github.com/target/sessionauth/internal/observability/statsd"
	"github.com/target/sessionauth/internal/ports"
)

// SessionReaperServiceOptions groups dependencies for SessionReaperService.
type SessionReaperServiceOptions struct {
	Purger  ports.SessionPurger // Required: store holding expired sessions
	Config  config.ReaperConfig // Required: reaper configuration
	Now     func() time.Time    // Optional: defaults to time.Now
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// SessionReaperService periodically deletes sessions past their expiry.
// Lookups already reject expired sessions; the reaper only reclaims storage.
type SessionReaperService struct {
	purger  ports.SessionPurger
	config  config.ReaperConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewSessionReaperService constructs a new SessionReaperService.
func NewSessionReaperService(opts SessionReaperServiceOptions) (*SessionReaperService, error) {
	if opts.Purger == nil {
		return nil, errors.New("SessionPurger is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "session_reaper")
		logger.Debug("SessionReaperService initialized",
			"interval", opts.Config.Interval,
			"grace", opts.Config.Grace,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &SessionReaperService{
		purger:  opts.Purger,
		config:  opts.Config,
		now:     now,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SessionReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting session reaper", "interval", s.config.Interval)
	}

	// Spread instances that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(ctx, err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "session reaper stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(ctx, err, "cleanup")
			}
		}
	}
}

// RunOnce deletes expired sessions in batches until none remain and returns the total removed.
func (s *SessionReaperService) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.now().UTC().Add(-s.config.Grace)

	var total int64
	var err error
	for {
		var n int64
		n, err = s.purger.DeleteExpired(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			break
		}
		total += n
		if n < int64(s.config.BatchSize) || n == 0 {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}
	}

	metrics.EmitReap(s.metrics, total, time.Since(start), suppressContextCancellation(err))

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired sessions", "count", total, "cutoff", cutoff)
	}
	if err != nil {
		return total, fmt.Errorf("delete expired sessions: %w", err)
	}
	return total, nil
}

// waitWithJitter sleeps a random delay up to 10% of the interval.
func (s *SessionReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *SessionReaperService) logCleanupError(ctx context.Context, err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
