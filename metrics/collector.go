// Package metrics exports run lifecycle metrics to Prometheus.
//
// Collector implements runner.Hooks; register it with the runner and with a
// prometheus.Registerer:
//
//	c := metrics.NewCollector(func(o *metrics.Options) { o.Registerer = reg })
//	r, _ := runner.New(backend, runner.WithHooks(c))
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/runner"
)

// Options configures a Collector.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "agentrelay".
	Namespace string
	// Registerer receives the metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	// Buckets of the model call latency histogram, in seconds.
	Buckets []float64
}

// Collector records agent runs, guardrail verdicts, handoffs and backend
// call latency.
type Collector struct {
	agentRuns        *prometheus.CounterVec
	guardrailChecks  *prometheus.CounterVec
	handoffs         *prometheus.CounterVec
	modelCalls       *prometheus.CounterVec
	modelCallSeconds *prometheus.HistogramVec
}

// NewCollector creates the metric vectors and registers them with
// opts.Registerer.
func NewCollector(optFns ...func(o *Options)) *Collector {
	opts := Options{
		Namespace:  "agentrelay",
		Registerer: prometheus.DefaultRegisterer,
		Buckets:    []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	factory := promauto.With(opts.Registerer)

	return &Collector{
		agentRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "agent_runs_total",
				Help:      "Total number of finished agent runs",
			},
			[]string{"agent", "status"},
		),
		guardrailChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "guardrail_checks_total",
				Help:      "Total number of guardrail evaluations",
			},
			[]string{"agent", "tripped", "guardrail"},
		),
		handoffs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "handoffs_total",
				Help:      "Total number of handoffs between agents",
			},
			[]string{"from", "to"},
		),
		modelCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "model_calls_total",
				Help:      "Total number of backend calls",
			},
			[]string{"agent", "model", "status"},
		),
		modelCallSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: opts.Namespace,
				Name:      "model_call_duration_seconds",
				Help:      "Backend call duration in seconds",
				Buckets:   opts.Buckets,
			},
			[]string{"agent", "model"},
		),
	}
}

func (c *Collector) OnAgentStart(*core.RunContext, string, string) {}

func (c *Collector) OnGuardrail(_ *core.RunContext, agent string, verdict core.Verdict) {
	c.guardrailChecks.WithLabelValues(agent, strconv.FormatBool(verdict.TripwireTriggered), verdict.Guardrail).Inc()
}

func (c *Collector) OnModelCall(_ *core.RunContext, agent, model string, d time.Duration, err error) {
	c.modelCalls.WithLabelValues(agent, model, status(err)).Inc()
	c.modelCallSeconds.WithLabelValues(agent, model).Observe(d.Seconds())
}

func (c *Collector) OnHandoff(_ *core.RunContext, from, to string) {
	c.handoffs.WithLabelValues(from, to).Inc()
}

func (c *Collector) OnAgentEnd(_ *core.RunContext, agent string, _ *core.RunResult, err error) {
	c.agentRuns.WithLabelValues(agent, status(err)).Inc()
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, core.ErrGuardrailTripped):
		return "tripped"
	case errors.Is(err, core.ErrValidation):
		return "invalid_output"
	case errors.Is(err, core.ErrDelegationContract):
		return "delegation_error"
	case errors.Is(err, core.ErrBackend):
		return "backend_error"
	default:
		return "error"
	}
}

var _ runner.Hooks = (*Collector)(nil)
