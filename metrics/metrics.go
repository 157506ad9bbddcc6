// Package metrics counts tiles and points of aggregation runs in a
// Prometheus registry, written to a textfile at the end of a run.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type BuildInfo struct {
	Version  string
	Revision string
}

type Provider struct {
	reg           *prometheus.Registry
	tiles         *prometheus.CounterVec
	pointsMatched *prometheus.CounterVec
}

func Init(build BuildInfo) *Provider {
	reg := prometheus.NewRegistry()

	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gba_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision"},
	)
	if build.Version == "" {
		build.Version = "dev"
	}
	info.WithLabelValues(build.Version, build.Revision).Set(1)

	tiles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gba_tiles_total",
			Help: "Tiles visited, by tile dimension and outcome.",
		},
		[]string{"dimension", "outcome"},
	)
	pointsMatched := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gba_points_matched_total",
			Help: "Points matched to retained tiles, by tile dimension.",
		},
		[]string{"dimension"},
	)
	reg.MustRegister(info, tiles, pointsMatched)

	return &Provider{reg: reg, tiles: tiles, pointsMatched: pointsMatched}
}

func dimensionLabel(dimension float64) string {
	return strconv.FormatFloat(dimension, 'f', -1, 64)
}

// ObserveTile counts one tile with its outcome: retained or a skip reason.
func (p *Provider) ObserveTile(dimension float64, outcome string) {
	if p == nil {
		return
	}
	p.tiles.WithLabelValues(dimensionLabel(dimension), outcome).Inc()
}

// AddPointsMatched counts points matched to a retained tile.
func (p *Provider) AddPointsMatched(dimension float64, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.pointsMatched.WithLabelValues(dimensionLabel(dimension)).Add(float64(n))
}

// WriteTextfile writes all metrics in the Prometheus text format.
func (p *Provider) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.reg)
}

func (p *Provider) Gatherer() prometheus.Gatherer { return p.reg }
