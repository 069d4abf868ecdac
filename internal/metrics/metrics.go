// Package metrics exposes the graph engine's Prometheus collectors:
// recompile count/duration, the currently published generation, compiled
// graph latency, buffer-pool sizes, and exchange publish/drop counters.
// All of it is updated from the topology thread; nothing here is touched
// from process_block.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecompileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiograph_recompile_total",
		Help: "Total render sequence recompiles by outcome.",
	}, []string{"outcome"})

	RecompileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audiograph_recompile_duration_seconds",
		Help:    "Time spent compiling both precision twins of a render sequence.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
	})

	PublishedGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiograph_published_generation",
		Help: "Monotonically increasing count of render sequences published to the exchange.",
	})

	GraphLatencySamples = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiograph_latency_samples",
		Help: "Total compensated latency, in samples, of the currently published render sequence.",
	})

	AudioBufferPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiograph_audio_buffer_pool_size",
		Help: "Number of audio buffer slots in the currently published render sequence.",
	})

	MIDIBufferPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiograph_midi_buffer_pool_size",
		Help: "Number of MIDI buffer slots in the currently published render sequence.",
	})

	ExchangePublishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audiograph_exchange_publish_total",
		Help: "Total sequences handed to the wait-free exchange by the topology thread.",
	})

	ExchangeDropTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audiograph_exchange_drop_total",
		Help: "Total previously-live sequences collected by the janitor after the audio thread swapped in a newer one.",
	})
)
