package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "Currently open chat connections",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_connections_total",
		Help: "Total chat connections accepted",
	})

	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_turns_total",
		Help: "Turns started, by kind",
	}, []string{"kind"})

	TurnsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_turns_cancelled_total",
		Help: "Turns abandoned by a superseding message, persona switch, or disconnect",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	SentencesSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_sentences_synthesized_total",
		Help: "Sentences successfully synthesized",
	})

	AudioBytesStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_audio_bytes_streamed_total",
		Help: "Audio bytes forwarded to peers",
	})

	EmotionsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_emotions_detected_total",
		Help: "Emotion tags extracted from replies",
	}, []string{"emotion"})
)
