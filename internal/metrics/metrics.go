// Package metrics exposes Prometheus collectors for dispatch and push-channel activity.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "straca"

// Metrics implements dispatcher.Observer and caw.Observer.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	channelsOpen     prometheus.Gauge
	eventsFired      prometheus.Counter
	framesDelivered  prometheus.Counter
	writesFailed     prometheus.Counter
}

// New creates the collectors. A nil registerer uses prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Executed envelopes, chained ones included",
		}, []string{"service", "operation", "ok", "chain_ok"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Handler execution time including nested sub-requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "operation"}),
		channelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "caw",
			Name:      "channels_open",
			Help:      "Open push channels",
		}),
		eventsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "caw",
			Name:      "events_fired_total",
			Help:      "Events fired on this instance",
		}),
		framesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "caw",
			Name:      "frames_delivered_total",
			Help:      "Event frames written to channels",
		}),
		writesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "caw",
			Name:      "writes_failed_total",
			Help:      "Event frames that failed to write",
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	collectors := []prometheus.Collector{
		m.dispatchTotal,
		m.dispatchDuration,
		m.channelsOpen,
		m.eventsFired,
		m.framesDelivered,
		m.writesFailed,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *Metrics) ObserveDispatch(service, operation string, ok, chainOK bool, elapsed time.Duration) {
	m.dispatchTotal.WithLabelValues(service, operation, strconv.FormatBool(ok), strconv.FormatBool(chainOK)).Inc()
	m.dispatchDuration.WithLabelValues(service, operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveChannels(open int) {
	m.channelsOpen.Set(float64(open))
}

func (m *Metrics) ObserveFire(_ string, delivered, failed int) {
	m.eventsFired.Inc()
	m.framesDelivered.Add(float64(delivered))
	m.writesFailed.Add(float64(failed))
}
