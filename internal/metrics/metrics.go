// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tansive/minima-mcp/internal/mds"
)

const namespace = "minima_mcp"

var (
	registerOnce sync.Once

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mds",
			Name:      "commands_total",
			Help:      "MDS commands executed, by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mds",
			Name:      "command_duration_seconds",
			Help:      "MDS command round trip time, confirmation included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "MCP tool calls, by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "call_duration_seconds",
			Help:      "MCP tool call handling time.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
	eventsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "recorded_total",
			Help:      "Node events recorded, by type.",
		},
		[]string{"type"},
	)
	blockHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "block_height",
			Help:      "Last chain tip seen by the event watcher.",
		},
	)
)

// Register adds the collectors to the default registry. It is safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(commands, commandDuration, toolCalls, toolDuration, eventsRecorded, blockHeight)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// Outcome labels a result: ok, pending, rejected, failed or error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, mds.ErrPendingCommand):
		return "pending"
	case errors.Is(err, mds.ErrNotAuthenticated), errors.Is(err, mds.ErrInvalidArgument):
		return "rejected"
	case errors.Is(err, mds.ErrCommandFailed):
		return "failed"
	default:
		return "error"
	}
}

// ObserveCommand matches mds.Options.Observer.
func ObserveCommand(command string, elapsed time.Duration, err error) {
	Register()
	commands.WithLabelValues(command, Outcome(err)).Inc()
	commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveTool records one tool call. failed is the tool-level result, which is not a Go
// error for domain failures.
func ObserveTool(tool string, elapsed time.Duration, failed bool) {
	Register()
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	toolCalls.WithLabelValues(tool, outcome).Inc()
	toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func ObserveEvent(eventType string) {
	Register()
	eventsRecorded.WithLabelValues(eventType).Inc()
}

func SetBlockHeight(block int64) {
	Register()
	blockHeight.Set(float64(block))
}
