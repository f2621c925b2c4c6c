package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	shotsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shotlog_shots_ingested_total",
			Help: "Shots ingested, by display and outcome",
		},
		[]string{"display", "outcome"}, // outcome: processed, failed
	)

	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shotlog_pipeline_duration_seconds",
			Help:    "OCR pipeline duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"display"},
	)

	ocrTextLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shotlog_ocr_text_length",
			Help:    "Length of recognized text",
			Buckets: []float64{0, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	sessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shotlog_sessions_created_total",
			Help: "Sessions created implicitly by uploads",
		},
	)
)
