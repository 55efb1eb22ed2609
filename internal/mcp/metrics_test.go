package mcp_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rpggio/cubelink/internal/mcp"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountToolCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newCube(t)
	session := connect(t, mcp.NewServer(mcp.Config{Cube: c, Metrics: mcp.NewMetrics(reg)}))

	call(t, session, "list_folders", nil)
	call(t, session, "list_folders", nil)
	call(t, session, "describe_feature", map[string]any{"feature": "margin"})

	expected := `
# HELP cubelink_tool_calls_total Tool calls by tool and outcome (ok, tool_error, protocol_error).
# TYPE cubelink_tool_calls_total counter
cubelink_tool_calls_total{outcome="ok",tool="list_folders"} 2
cubelink_tool_calls_total{outcome="tool_error",tool="describe_feature"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cubelink_tool_calls_total"))

	count, err := testutil.GatherAndCount(reg, "cubelink_tool_call_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
