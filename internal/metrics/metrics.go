// Package metrics holds the Prometheus collectors for attachment, preview
// and HTTP activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edmanweb"

var (
	// attachmentOps counts attach/detach calls by outcome.
	// Labels: op (attach, detach), outcome (ok, error)
	attachmentOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "attachments",
		Name:      "operations_total",
		Help:      "Attachment attach/detach operations by outcome",
	}, []string{"op", "outcome"})

	// compensations counts blob deletes issued after a failed document update.
	// Labels: outcome (ok, error)
	compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "attachments",
		Name:      "compensations_total",
		Help:      "Compensating blob deletes after a failed document update",
	}, []string{"outcome"})

	blobDeleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "blobs",
		Name:      "delete_failures_total",
		Help:      "Blob deletes that failed after references were removed",
	})

	blobBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "blobs",
		Name:      "written_bytes_total",
		Help:      "Bytes written to the blob store after optional compression",
	})

	// previewRenders counts rendered previews.
	// Labels: kind (thumbnail, image), outcome (ok, error)
	previewRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "previews",
		Name:      "renders_total",
		Help:      "Preview renders by kind and outcome",
	}, []string{"kind", "outcome"})

	previewDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "previews",
		Name:      "render_duration_seconds",
		Help:      "Time to download and render one preview",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// httpDuration measures request latency.
	// Labels: route (mux pattern), status (HTTP status code)
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// Outcome values used as label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// ObserveAttach records one attach call.
func ObserveAttach(err error) {
	attachmentOps.WithLabelValues("attach", outcome(err)).Inc()
}

// ObserveDetach records one detach call.
func ObserveDetach(err error) {
	attachmentOps.WithLabelValues("detach", outcome(err)).Inc()
}

// ObserveCompensation records one compensating delete.
func ObserveCompensation(err error) {
	compensations.WithLabelValues(outcome(err)).Inc()
}

// ObserveBlobDeleteFailure records a blob leak reported to the caller.
func ObserveBlobDeleteFailure() {
	blobDeleteFailures.Inc()
}

// ObserveBlobWrite records stored payload size.
func ObserveBlobWrite(size int64) {
	if size > 0 {
		blobBytesWritten.Add(float64(size))
	}
}

// ObservePreview records one preview render.
func ObservePreview(kind string, started time.Time, err error) {
	previewRenders.WithLabelValues(kind, outcome(err)).Inc()
	previewDuration.Observe(time.Since(started).Seconds())
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
