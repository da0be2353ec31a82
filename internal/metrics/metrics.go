// Package metrics exports verification counters and latencies to
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/high-horse/fingerprint-server/internal/verify"
)

const namespace = "fingerprint"

// Recorder implements verify.Observer. Each Recorder owns its registry so
// several can live in one process.
type Recorder struct {
	registry *prometheus.Registry

	verifications *prometheus.CounterVec
	matches       prometheus.Counter
	scores        prometheus.Histogram
	duration      *prometheus.HistogramVec
	correspond    prometheus.Histogram
	templates     *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_total",
				Help:      "Total number of verifications by outcome",
			},
			[]string{"outcome"},
		),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Verifications that ended in a match",
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_score",
			Help:      "Composite match score of completed verifications",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Verification latency per pipeline stage",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		correspond: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verified_correspondences",
			Help:      "Correspondences surviving geometric verification",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		templates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "template_lookups_total",
				Help:      "Prepared template lookups by cache result",
			},
			[]string{"cache"},
		),
	}
	r.registry.MustRegister(r.verifications, r.matches, r.scores, r.duration, r.correspond, r.templates)
	r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// Observe records one finished verification.
func (r *Recorder) Observe(o verify.Outcome) {
	r.verifications.WithLabelValues(outcomeLabel(o)).Inc()
	r.duration.WithLabelValues("total").Observe(o.Stats.Total.Seconds())
	if o.Failed() {
		return
	}
	if o.Result.Match {
		r.matches.Inc()
	}
	r.scores.Observe(o.Result.Score)
	r.correspond.Observe(float64(o.Stats.VerifiedMatches))
	r.duration.WithLabelValues("prepare").Observe(o.Stats.Prepare.Seconds())
	r.duration.WithLabelValues("match").Observe(o.Stats.Match.Seconds())
	r.duration.WithLabelValues("geometry").Observe(o.Stats.Geometry.Seconds())
	r.duration.WithLabelValues("score").Observe(o.Stats.Score.Seconds())
	if o.Stats.TemplateCached {
		r.templates.WithLabelValues("hit").Inc()
	} else {
		r.templates.WithLabelValues("miss").Inc()
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func outcomeLabel(o verify.Outcome) string {
	if !o.Failed() {
		return "ok"
	}
	return o.Kind().String()
}
