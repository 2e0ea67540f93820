package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve("127.0.0.1:0")
	defer srv.Close()

	Decisions.WithLabelValues("accepted").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "optsignal_decisions_total" {
			found = true
			break
		}
	}
	assert.True(t, found, "optsignal_decisions_total not registered")
}

func TestGaugeValues(t *testing.T) {
	BreakerTripped.Set(1)
	defer BreakerTripped.Set(0)
	var m dto.Metric
	require.NoError(t, BreakerTripped.Write(&m))
	assert.Equal(t, 1.0, m.GetGauge().GetValue())
}
