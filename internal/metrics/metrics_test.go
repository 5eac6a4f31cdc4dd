package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveRun("posthog_handles", "succeeded", 1.5)
	c.ObserveRun("posthog_handles", "failed", 0.2)
	c.AddOperations("posthog_handles", "create", 3)
	c.AddOperations("posthog_handles", "zero", 0)
	c.AddWarning("posthog_handles", "duplicate_key")

	require.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("posthog_handles", "succeeded")))
	require.Equal(t, 3.0, testutil.ToFloat64(c.operations.WithLabelValues("posthog_handles", "create")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.warnings.WithLabelValues("posthog_handles", "duplicate_key")))

	expected := `
# HELP rollup_runs_total Pipeline runs by variant and final status.
# TYPE rollup_runs_total counter
rollup_runs_total{status="failed",variant="posthog_handles"} 1
rollup_runs_total{status="succeeded",variant="posthog_handles"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "rollup_runs_total"))
}

func TestNilCollectors(t *testing.T) {
	var c *Collectors
	require.NotPanics(t, func() {
		c.ObserveRun("v", "succeeded", 1)
		c.AddOperations("v", "create", 1)
		c.AddWarning("v", "duplicate_key")
	})
}
