package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slok/meshforge/internal/metrics"
	"github.com/slok/meshforge/internal/model"
)

const namespace = "meshforge"

// Recorder is the Prometheus implementation of metrics.Recorder.
type Recorder struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	generationsTotal    *prometheus.CounterVec
	generationDuration  *prometheus.HistogramVec
	jobEventsTotal      *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
	runningJobs         prometheus.Gauge
}

// NewRecorder returns a new Prometheus recorder registering its metrics on the registerer.
// A nil registerer uses the default Prometheus registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "The duration of the HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		generationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "generations_total",
			Help:      "Total number of 3D generations.",
		}, []string{"type", "quality", "success"}),

		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "generation_duration_seconds",
			Help:      "The duration of the 3D generations.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 3, 5, 8, 13},
		}, []string{"type"}),

		jobEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "job_events_total",
			Help:      "Total number of pipeline job lifecycle events.",
		}, []string{"event"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "The simulated duration of the pipeline stages.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 10},
		}, []string{"stage"}),

		runningJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "running_jobs",
			Help:      "The number of pipeline jobs being simulated.",
		}),
	}
}

var _ metrics.Recorder = &Recorder{}

func (r *Recorder) ObserveHTTPRequest(_ context.Context, method, path string, status int, duration time.Duration) {
	r.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (r *Recorder) ObserveGeneration(_ context.Context, t model.GenerationType, q model.Quality, success bool, duration time.Duration) {
	r.generationsTotal.WithLabelValues(string(t), string(q), strconv.FormatBool(success)).Inc()
	r.generationDuration.WithLabelValues(string(t)).Observe(duration.Seconds())
}

func (r *Recorder) AddJobEvent(_ context.Context, event string) {
	r.jobEventsTotal.WithLabelValues(event).Inc()
}

func (r *Recorder) ObserveStageDuration(_ context.Context, stageID string, duration time.Duration) {
	r.stageDuration.WithLabelValues(stageID).Observe(duration.Seconds())
}

func (r *Recorder) SetRunningJobs(_ context.Context, n int) {
	r.runningJobs.Set(float64(n))
}
