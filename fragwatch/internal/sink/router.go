package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/metrics"
)

type namedSink struct {
	name string
	sink Sink
}

// Router fans a payload out to every registered sink in registration order.
// The first failure is returned; later ones are only logged.
type Router struct {
	mu      sync.RWMutex
	sinks   []namedSink
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewRouter returns an empty router. Nil arguments select defaults.
func NewRouter(logger *slog.Logger, rec metrics.Recorder) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Router{logger: logger, metrics: rec}
}

// Add registers s under name.
func (r *Router) Add(name string, s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, namedSink{name, s})
	r.mu.Unlock()
}

// Len returns the number of registered sinks.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

func (r *Router) DeliverPlayer(ctx context.Context, p PlayerPayload) error {
	return r.each("player", func(s Sink) error { return s.DeliverPlayer(ctx, p) })
}

func (r *Router) DeliverRanking(ctx context.Context, p RankingPayload) error {
	return r.each("ranking", func(s Sink) error { return s.DeliverRanking(ctx, p) })
}

func (r *Router) each(kind string, fn func(Sink) error) error {
	r.mu.RLock()
	sinks := append([]namedSink(nil), r.sinks...)
	r.mu.RUnlock()

	var first error
	for _, ns := range sinks {
		err := fn(ns.sink)
		r.metrics.Delivery(ns.name, err == nil)
		if err == nil {
			continue
		}
		r.logger.Warn("sink: delivery failed", "sink", ns.name, "kind", kind, "error", err)
		if first == nil {
			var se *SendError
			if !errors.As(err, &se) {
				err = &SendError{Sink: ns.name, Cause: err}
			}
			first = err
		}
	}
	return first
}

// Close closes every sink and joins their errors.
func (r *Router) Close() error {
	r.mu.Lock()
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()

	var errs []error
	for _, ns := range sinks {
		if err := ns.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
