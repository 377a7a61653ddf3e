package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/v1/triage", "POST", 200, time.Millisecond)
	m.RecordRequest("/v1/triage", "POST", 200, time.Millisecond)
	m.RecordError("/v1/triage", "POST", "SCHEMA_VIOLATION")
	m.RecordStage("direct", "classify", "completed", 10*time.Millisecond)
	m.RecordStage("direct", "classify", "completed", 30*time.Millisecond)
	m.RecordStage("mcp", "compose", "failed", 5*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/v1/triage|POST|200"])
	assert.Equal(t, int64(1), snap.Errors["/v1/triage|POST|SCHEMA_VIOLATION"])
	require.Len(t, snap.Stages, 2)
	assert.Equal(t, "direct|classify|completed", snap.Stages[0].Key)
	assert.Equal(t, int64(2), snap.Stages[0].Count)
	assert.InDelta(t, 20.0, snap.Stages[0].AvgDurationMS, 0.001)
	assert.Equal(t, "mcp|compose|failed", snap.Stages[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordStage("direct", "classify", "completed", 0)
	assert.Empty(t, m.Snapshot().Stages)
}
