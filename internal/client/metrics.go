package client

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the resilient client. All
// recording methods are nil-safe so tests can run without a registry.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec
	CacheEvents      *prometheus.CounterVec
	Retries          prometheus.Counter
	RateLimited      prometheus.Counter
	TokenRefreshes   *prometheus.CounterVec
}

// NewMetrics constructs and registers the client collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	upstream := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buddy",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total logical upstream requests partitioned by outcome.",
	}, []string{"outcome"})
	if err := registerCounterVec(reg, &upstream); err != nil {
		return nil, err
	}

	cacheEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buddy",
		Subsystem: "cache",
		Name:      "events_total",
		Help:      "Cache lookups partitioned by event (hit, miss).",
	}, []string{"event"})
	if err := registerCounterVec(reg, &cacheEvents); err != nil {
		return nil, err
	}

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buddy",
		Subsystem: "upstream",
		Name:      "retries_total",
		Help:      "Dispatch attempts beyond the first for a logical request.",
	})
	if err := registerCounter(reg, &retries); err != nil {
		return nil, err
	}

	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buddy",
		Subsystem: "upstream",
		Name:      "rate_limited_total",
		Help:      "Requests denied admission by the local limiter.",
	})
	if err := registerCounter(reg, &rateLimited); err != nil {
		return nil, err
	}

	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buddy",
		Subsystem: "auth",
		Name:      "token_refreshes_total",
		Help:      "Token refresh operations partitioned by result.",
	}, []string{"result"})
	if err := registerCounterVec(reg, &refreshes); err != nil {
		return nil, err
	}

	return &Metrics{
		UpstreamRequests: upstream,
		CacheEvents:      cacheEvents,
		Retries:          retries,
		RateLimited:      rateLimited,
		TokenRefreshes:   refreshes,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, vec **prometheus.CounterVec) error {
	if err := reg.Register(*vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*vec = existing
	}
	return nil
}

func registerCounter(reg prometheus.Registerer, counter *prometheus.Counter) error {
	if err := reg.Register(*counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*counter = existing
	}
	return nil
}

func (m *Metrics) outcome(outcome string) {
	if m != nil && m.UpstreamRequests != nil {
		m.UpstreamRequests.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) cacheEvent(event string) {
	if m != nil && m.CacheEvents != nil {
		m.CacheEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) retry() {
	if m != nil && m.Retries != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) rateLimited() {
	if m != nil && m.RateLimited != nil {
		m.RateLimited.Inc()
	}
}

func (m *Metrics) tokenRefresh(result string) {
	if m != nil && m.TokenRefreshes != nil {
		m.TokenRefreshes.WithLabelValues(result).Inc()
	}
}
