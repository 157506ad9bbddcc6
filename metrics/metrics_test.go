package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	p := Init(BuildInfo{Version: "test"})
	p.ObserveTile(100, "retained")
	p.ObserveTile(100, "retained")
	p.ObserveTile(100, "all_cloud")
	p.ObserveTile(2.5, "retained")
	p.AddPointsMatched(100, 7)
	p.AddPointsMatched(100, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.tiles.WithLabelValues("100", "retained")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tiles.WithLabelValues("100", "all_cloud")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tiles.WithLabelValues("2.5", "retained")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.pointsMatched.WithLabelValues("100")))

	path := filepath.Join(t.TempDir(), "gba.prom")
	require.NoError(t, p.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gba_tiles_total{dimension="100",outcome="retained"} 2`)
	assert.Contains(t, string(data), `gba_build_info{revision="",version="test"} 1`)
}

func TestProvider_nil(t *testing.T) {
	var p *Provider
	assert.NotPanics(t, func() {
		p.ObserveTile(1, "retained")
		p.AddPointsMatched(1, 3)
	})
}
