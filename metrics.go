package utf8stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus counters shared by any number of decoders.
//
// A nil *Metrics is valid and records nothing.
//
type Metrics struct {
	appendedBytes    prometheus.Counter
	decodedBytes     prometheus.Counter
	invalidSequences *prometheus.CounterVec
	finalizes        prometheus.Counter
	resets           prometheus.Counter
}

// NewMetrics creates the decoder counters and, if registerer is not nil,
// registers them.  Every series carries the label component="utf8stream".
func NewMetrics(registerer prometheus.Registerer, namespace, subsystem string) *Metrics {
	m := Metrics{
		appendedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appended_bytes",
			Help:      "Number of bytes appended to decoders",
		}),
		decodedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decoded_bytes",
			Help:      "Number of bytes of text produced by decoders",
		}),
		invalidSequences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "invalid_sequences",
			Help:      "Number of invalid sequences reported, by policy",
		}, []string{"policy"}),
		finalizes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "finalizes",
			Help:      "Number of decoder finalizations",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resets",
			Help:      "Number of decoder resets",
		}),
	}

	if registerer != nil {
		prometheus.WrapRegistererWith(
			prometheus.Labels{"component": "utf8stream"},
			registerer,
		).MustRegister(
			m.appendedBytes,
			m.decodedBytes,
			m.invalidSequences,
			m.finalizes,
			m.resets,
		)
	}

	return &m
}

func (m *Metrics) appended(n int) {
	if m != nil && n > 0 {
		m.appendedBytes.Add(float64(n))
	}
}

func (m *Metrics) decoded(n int) {
	if m != nil && n > 0 {
		m.decodedBytes.Add(float64(n))
	}
}

func (m *Metrics) invalid(policy string) {
	if m != nil {
		m.invalidSequences.WithLabelValues(policy).Inc()
	}
}

func (m *Metrics) finalized() {
	if m != nil {
		m.finalizes.Inc()
	}
}

func (m *Metrics) reset() {
	if m != nil {
		m.resets.Inc()
	}
}
