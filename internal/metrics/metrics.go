// Package metrics records mirror runs as Prometheus metrics, for scraping or for the
// node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/asad/blobmirror/internal/mirror"
	"github.com/asad/blobmirror/internal/storage"
)

const namespace = "blobmirror"

// Metrics observes mirror events. It owns its registry so a run never touches global state.
type Metrics struct {
	registry *prometheus.Registry
	now      func() time.Time

	containersListed prometheus.Counter
	blobsListed      prometheus.Counter
	blobsDownloaded  prometheus.Counter
	bytesDownloaded  prometheus.Counter
	failures         *prometheus.CounterVec
	runDuration      prometheus.Gauge
	runSuccess       prometheus.Gauge
	lastSuccess      prometheus.Gauge
}

// New creates the metrics for one account. source labels every series, e.g. the account name.
func New(source string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"source": source}

	return &Metrics{
		registry: reg,
		now:      time.Now,
		containersListed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "containers_listed_total", ConstLabels: labels,
			Help: "Containers that passed the container filter.",
		}),
		blobsListed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "blobs_listed_total", ConstLabels: labels,
			Help: "Blobs that passed the blob filters.",
		}),
		blobsDownloaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "blobs_downloaded_total", ConstLabels: labels,
			Help: "Blobs written to the mirror.",
		}),
		bytesDownloaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "downloaded_bytes_total", ConstLabels: labels,
			Help: "Bytes written to the mirror.",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "run_failures_total", ConstLabels: labels,
			Help: "Failed runs by error kind.",
		}, []string{"kind"}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_duration_seconds", ConstLabels: labels,
			Help: "Duration of the last run.",
		}),
		runSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_success", ConstLabels: labels,
			Help: "1 if the last run completed, 0 if it failed.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_success_timestamp_seconds", ConstLabels: labels,
			Help: "Unix time of the last completed run.",
		}),
	}
}

// Observe implements mirror.Observer.
func (m *Metrics) Observe(e mirror.Event) {
	switch e.Kind {
	case mirror.EventContainersListed:
		m.containersListed.Add(float64(e.Count))
	case mirror.EventBlobsListed:
		m.blobsListed.Add(float64(e.Count))
	case mirror.EventDownloaded:
		m.blobsDownloaded.Inc()
		m.bytesDownloaded.Add(float64(e.Bytes))
	case mirror.EventCompleted:
		m.runDuration.Set(e.Duration.Seconds())
		m.runSuccess.Set(1)
		m.lastSuccess.Set(float64(m.now().Unix()))
	case mirror.EventFailed:
		m.runDuration.Set(e.Duration.Seconds())
		m.runSuccess.Set(0)
		m.failures.WithLabelValues(storage.KindOf(e.Err).String()).Inc()
	}
}

// WriteFile writes all metrics to path in text format, atomically.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return storage.NewError(storage.KindFilesystem, "write metrics file", err)
	}
	return nil
}

var _ mirror.Observer = (*Metrics)(nil)
