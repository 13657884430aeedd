package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/sessionauth/config"
	domainauth "github.com/target/sessionauth/internal/domain/auth"
	mocks "github.com/target/sessionauth/internal/mocks/auth"
	"github.com/target/sessionauth/internal/observability/statsd"
)

// scriptedPurger returns queued batch results in order.
type scriptedPurger struct {
	mu      sync.Mutex
	results []int64
	err     error
	calls   int
	cutoffs []time.Time
}

func (p *scriptedPurger) DeleteExpired(_ context.Context, before time.Time, _ int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.cutoffs = append(p.cutoffs, before)
	if p.err != nil {
		return 0, p.err
	}
	if len(p.results) == 0 {
		return 0, nil
	}
	n := p.results[0]
	p.results = p.results[1:]
	return n, nil
}

func (p *scriptedPurger) DeleteByUser(context.Context, string) (int64, error) { return 0, nil }

func reaperConfig() config.ReaperConfig {
	return config.ReaperConfig{Interval: time.Minute, BatchSize: 2}
}

func TestNewSessionReaperService_Validation(t *testing.T) {
	_, err := NewSessionReaperService(SessionReaperServiceOptions{Config: reaperConfig()})
	require.Error(t, err)

	_, err = NewSessionReaperService(SessionReaperServiceOptions{Purger: &scriptedPurger{}})
	require.Error(t, err)

	svc, err := NewSessionReaperService(SessionReaperServiceOptions{
		Purger: &scriptedPurger{},
		Config: reaperConfig(),
		Logger: slog.Default(),
	})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestSessionReaper_RunOnce_LoopsUntilShortBatch(t *testing.T) {
	purger := &scriptedPurger{results: []int64{2, 2, 1}}
	rec := &statsd.Recorder{}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cfg := reaperConfig()
	cfg.Grace = time.Hour

	svc, err := NewSessionReaperService(SessionReaperServiceOptions{
		Purger:  purger,
		Config:  cfg,
		Now:     func() time.Time { return now },
		Metrics: rec,
	})
	require.NoError(t, err)

	n, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, 3, purger.calls)
	assert.True(t, purger.cutoffs[0].Equal(now.Add(-time.Hour)))
	assert.Equal(t, int64(5), rec.Total("reaper.sessions_deleted"))
	assert.Equal(t, "success", rec.Named("reaper.cleanup")[0].Tags["result"])
}

func TestSessionReaper_RunOnce_Error(t *testing.T) {
	purger := &scriptedPurger{err: errors.New("db down")}
	rec := &statsd.Recorder{}
	svc, err := NewSessionReaperService(SessionReaperServiceOptions{Purger: purger, Config: reaperConfig(), Metrics: rec})
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, "error", rec.Named("reaper.cleanup")[0].Tags["result"])
}

func TestSessionReaper_RunOnce_MemoryStore(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	now := time.Now()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "old", UserID: "u", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "live", UserID: "u", ExpiresAt: now.Add(time.Hour)}))

	svc, err := NewSessionReaperService(SessionReaperServiceOptions{
		Purger: store,
		Config: reaperConfig(),
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)

	n, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}

func TestSessionReaper_RunStopsOnCancel(t *testing.T) {
	purger := &scriptedPurger{}
	svc, err := NewSessionReaperService(SessionReaperServiceOptions{Purger: purger, Config: reaperConfig()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
