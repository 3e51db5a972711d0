package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracex_records_decoded_total",
		Help: "Records handed out by the loader, by kind",
	}, []string{"kind"})

	sessionsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracex_sessions_decoded_total",
		Help: "Sessions decoded, by the reason they stopped",
	}, []string{"stop"})

	bytesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracex_bytes_decoded_total",
		Help: "Bytes of trace data consumed",
	})

	sessionDecodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracex_session_decode_duration_seconds",
		Help:    "Time to decode one session in seconds",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})
)

const (
	kindRead       = "read"
	kindSynthEntry = "synthesized_entry"
	kindSynthExit  = "synthesized_exit"
)
