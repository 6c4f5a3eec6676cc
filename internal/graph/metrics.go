package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("ocelgraph.graph")

var (
	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocelgraph_build_duration_seconds",
		Help:    "Duration of index builds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	buildTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocelgraph_builds_total",
		Help: "Total number of index builds",
	})

	droppedReferences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocelgraph_dropped_references_total",
		Help: "Relationships dropped because their target object does not exist",
	})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocelgraph_query_duration_seconds",
		Help:    "Duration of index queries",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"operation"})

	loadedObjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocelgraph_loaded_objects",
		Help: "Number of objects in the current index",
	})

	loadedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocelgraph_loaded_events",
		Help: "Number of events in the current index",
	})
)
