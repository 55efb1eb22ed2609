package mcp

import (
	"context"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts and times tool calls.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		calls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cubelink_tool_calls_total",
			Help: "Tool calls by tool and outcome (ok, tool_error, protocol_error).",
		}, []string{"tool", "outcome"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cubelink_tool_call_duration_seconds",
			Help:    "Time spent serving a tool call, including remote round trips.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"tool"}),
	}
}

func (m *Metrics) middleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			call, ok := req.(*sdkmcp.CallToolRequest)
			if !ok || call.Params == nil {
				return next(ctx, method, req)
			}

			start := time.Now()
			result, err := next(ctx, method, req)
			tool := call.Params.Name
			m.duration.WithLabelValues(tool).Observe(time.Since(start).Seconds())

			outcome := "ok"
			if err != nil {
				outcome = "protocol_error"
			} else if res, ok := result.(*sdkmcp.CallToolResult); ok && res.IsError {
				outcome = "tool_error"
			}
			m.calls.WithLabelValues(tool, outcome).Inc()
			return result, err
		}
	}
}
