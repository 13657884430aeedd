// Package metrics names and tags the metrics emitted by the auth service.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/target/sessionauth/internal/observability/statsd"
)

// Result tag values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultMissing = "missing"
	ResultExpired = "expired"
)

// Classifier maps an error to a short, low-cardinality class for tagging.
type Classifier func(error) string

// LoginMetric describes one completed (or failed) login attempt.
type LoginMetric struct {
	Provider string
	Result   string
	NewUser  bool
	Duration time.Duration
	Err      error
	Classify Classifier
}

// EmitLogin records a login attempt.
func EmitLogin(sink statsd.Sink, in LoginMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"provider": in.Provider,
		"result":   in.Result,
	}
	if in.Result == ResultSuccess {
		tags["new_user"] = boolTag(in.NewUser)
	}
	if in.Err != nil {
		tags["error_class"] = classify(in.Err, in.Classify)
	}
	sink.Count("auth.login", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.login_duration", in.Duration, CloneTags(tags))
	}
}

// EmitSessionLookup records the outcome of resolving a session token.
func EmitSessionLookup(sink statsd.Sink, result string, extended bool) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": result}
	if result == ResultSuccess {
		tags["extended"] = boolTag(extended)
	}
	sink.Count("auth.session_lookup", 1, tags)
}

// EmitReap records one reaper pass.
func EmitReap(sink statsd.Sink, deleted int64, elapsed time.Duration, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case err != nil:
		result = ResultError
	case deleted == 0:
		result = ResultNoop
	}
	tags := map[string]string{"result": result}
	if err != nil {
		tags["error_class"] = classify(err, nil)
	}
	sink.Count("reaper.cleanup", 1, tags)
	if deleted > 0 {
		sink.Count("reaper.sessions_deleted", deleted, nil)
	}
	if elapsed > 0 {
		sink.Timing("reaper.cleanup_duration", elapsed, CloneTags(tags))
	}
	if err == nil {
		sink.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

// CloneTags copies a tag map so sinks may retain it.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func classify(err error, fn Classifier) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	if fn != nil {
		if c := fn(err); c != "" {
			return c
		}
	}
	return "unknown"
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
