// Package observability exposes Prometheus metrics for container I/O and
// scene graph rendering.
package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the autoscene metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	ContainerOps       *prometheus.CounterVec
	ContainerDurations *prometheus.HistogramVec
	ContainerBytes     *prometheus.CounterVec

	ScenesLoaded   prometheus.Gauge
	FramesRendered prometheus.Counter
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same
// registry returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ops, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscene_container_operations_total",
		Help: "Container encode and decode operations, labeled by operation and result.",
	}, []string{"op", "result"}))
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoscene_container_duration_seconds",
		Help:    "Container encode and decode latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}
	bytes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscene_container_bytes_total",
		Help: "Bytes written or read by the container codec.",
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}
	scenes, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoscene_scenes_loaded",
		Help: "Number of scenes in the most recently loaded scenario.",
	}))
	if err != nil {
		return nil, err
	}
	frames, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoscene_frames_rendered_total",
		Help: "Scene graph frames produced by the extractor.",
	}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		ContainerOps:       ops,
		ContainerDurations: durations,
		ContainerBytes:     bytes,
		ScenesLoaded:       scenes,
		FramesRendered:     frames,
	}, nil
}

// ObserveContainer records one encode or decode.
func (c *Collector) ObserveContainer(op string, start time.Time, n int64, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ContainerOps.WithLabelValues(op, result).Inc()
	c.ContainerDurations.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil && n > 0 {
		c.ContainerBytes.WithLabelValues(op).Add(float64(n))
	}
}

// SetScenesLoaded records the size of the current scenario.
func (c *Collector) SetScenesLoaded(n int) {
	if c == nil {
		return
	}
	c.ScenesLoaded.Set(float64(n))
}

// AddFrames counts rendered frames.
func (c *Collector) AddFrames(n int) {
	if c == nil {
		return
	}
	c.FramesRendered.Add(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
