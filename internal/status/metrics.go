package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vcamd/internal/pipeline"
)

var (
	statusCategory = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vcamd",
		Name:      "status_category",
		Help:      "Current health category, 1 for the active one",
	}, []string{"category"})

	pipelineUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vcamd",
		Subsystem: "pipeline",
		Name:      "up",
		Help:      "Whether the relay process is alive",
	})

	pipelineRestarts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vcamd",
		Subsystem: "pipeline",
		Name:      "restart_count",
		Help:      "Automatic restarts since the last stable run",
	})

	captureDevicePresent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vcamd",
		Subsystem: "capture",
		Name:      "device_present",
		Help:      "Whether a matching capture camera was found",
	})
)

var allCategories = []Category{CategoryActive, CategoryIdle, CategoryDegraded, CategoryUnavailable}

// Metrics publishes snapshot facts as Prometheus gauges. The zero-size
// struct exists so callers can pass nil to disable metrics in tests.
type Metrics struct{}

// NewMetrics returns the metrics sink backed by the default registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Observe records one snapshot.
func (*Metrics) Observe(snap Snapshot) {
	for _, c := range allCategories {
		value := 0.0
		if c == snap.Category {
			value = 1.0
		}
		statusCategory.WithLabelValues(string(c)).Set(value)
	}

	if snap.PipelineState == pipeline.StateRunning {
		pipelineUp.Set(1)
	} else {
		pipelineUp.Set(0)
	}
	pipelineRestarts.Set(float64(snap.RestartCount))

	if snap.CapturePath != "" {
		captureDevicePresent.Set(1)
	} else {
		captureDevicePresent.Set(0)
	}
}
