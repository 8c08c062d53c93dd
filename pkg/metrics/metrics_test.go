package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePrometheus(t *testing.T) {
	ScenariosTotal.WithLabelValues("direct").Inc()
	IngestDroppedTotal.WithLabelValues("full").Inc()

	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, "runabout_scenarios_total")
	assert.Contains(t, out, `source="direct"`)
	assert.Contains(t, out, "runabout_ingest_dropped_total")
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(InstrumentationFailTotal.WithLabelValues("install"))
	InstrumentationFailTotal.WithLabelValues("install").Inc()
	after := testutil.ToFloat64(InstrumentationFailTotal.WithLabelValues("install"))
	assert.Equal(t, before+1, after)
}
