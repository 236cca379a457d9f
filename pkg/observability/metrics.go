// Copyright 2026 Embercore
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability exposes the companion's internal health as
// Prometheus metrics: tool execution outcomes and latency, LLM call
// latency, and the current concern mix by salience. It is entirely
// optional — New returns nil when disabled, and every recording
// method is a safe no-op on a nil receiver, so callers never need to
// branch on whether metrics are turned on.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config tunes whether and how metrics are collected and served.
type Config struct {
	Enabled   bool
	Namespace string
	// Addr is the listener address for the standalone metrics server, kept
	// entirely separate from the front door's /v1 API surface. Defaults to
	// ":9090" if empty.
	Addr string
}

// SetDefaults fills in the zero-valued fields of cfg.
func (cfg *Config) SetDefaults() {
	if cfg.Namespace == "" {
		cfg.Namespace = "ember"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}

// Metrics collects the companion's Prometheus series. A nil *Metrics is a
// valid, inert value: every method tolerates it.
type Metrics struct {
	config   *Config
	registry *prometheus.Registry

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec

	concernsBySalience *prometheus.GaugeVec

	schedulerTicks    prometheus.Counter
	schedulerTickDur  prometheus.Histogram
	journalWrites     prometheus.Counter
}

// New creates a Metrics instance from cfg, or returns nil if metrics are
// disabled.
func New(cfg Config) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	cfg.SetDefaults()

	m := &Metrics{
		config:   &cfg,
		registry: prometheus.NewRegistry(),
	}

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "tool",
		Name:      "calls_total",
		Help:      "Total number of tool invocations, by tool name and outcome.",
	}, []string{"tool_name", "outcome"})

	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: "tool",
		Name:      "call_duration_seconds",
		Help:      "Tool execution duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
	}, []string{"tool_name", "outcome"})

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Total number of LLM calls, by provider and whether streaming was used.",
	}, []string{"provider", "streaming"})

	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "LLM call duration in seconds, by provider and whether streaming was used.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to 204s
	}, []string{"provider", "streaming"})

	m.llmTokensInput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "llm",
		Name:      "tokens_input_total",
		Help:      "Total input tokens consumed, by provider.",
	}, []string{"provider"})

	m.llmTokensOutput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "llm",
		Name:      "tokens_output_total",
		Help:      "Total output tokens generated, by provider.",
	}, []string{"provider"})

	m.concernsBySalience = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: "concerns",
		Name:      "count",
		Help:      "Number of tracked concerns, by salience level.",
	}, []string{"salience"})

	m.schedulerTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Total number of scheduler ticks run.",
	})

	m.schedulerTickDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Scheduler tick duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	})

	m.journalWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "journal",
		Name:      "writes_total",
		Help:      "Total number of journal entries written.",
	})

	m.registry.MustRegister(
		m.toolCalls, m.toolCallDuration,
		m.llmCalls, m.llmCallDuration, m.llmTokensInput, m.llmTokensOutput,
		m.concernsBySalience,
		m.schedulerTicks, m.schedulerTickDur, m.journalWrites,
	)

	return m
}

// RecordToolCall records a tool invocation's outcome and duration.
func (m *Metrics) RecordToolCall(toolName string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.toolCalls.WithLabelValues(toolName, outcome).Inc()
	m.toolCallDuration.WithLabelValues(toolName, outcome).Observe(duration.Seconds())
}

// RecordLLMCall records one LLM request's duration and mode.
func (m *Metrics) RecordLLMCall(provider string, streaming bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, streamingLabel(streaming)).Inc()
	m.llmCallDuration.WithLabelValues(provider, streamingLabel(streaming)).Observe(duration.Seconds())
}

// RecordLLMTokens records token accounting for one LLM call.
func (m *Metrics) RecordLLMTokens(provider string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmTokensInput.WithLabelValues(provider).Add(float64(inputTokens))
	m.llmTokensOutput.WithLabelValues(provider).Add(float64(outputTokens))
}

// SetConcernsBySalience replaces the current concern-count gauge for every
// salience level in counts; levels absent from counts are set to zero so
// a concern that drains to nothing doesn't leave a stale nonzero series.
func (m *Metrics) SetConcernsBySalience(counts map[string]int, allLevels []string) {
	if m == nil {
		return
	}
	for _, level := range allLevels {
		m.concernsBySalience.WithLabelValues(level).Set(float64(counts[level]))
	}
}

// RecordSchedulerTick records one scheduler tick's duration.
func (m *Metrics) RecordSchedulerTick(duration time.Duration) {
	if m == nil {
		return
	}
	m.schedulerTicks.Inc()
	m.schedulerTickDur.Observe(duration.Seconds())
}

// RecordJournalWrite records a journal entry being written.
func (m *Metrics) RecordJournalWrite() {
	if m == nil {
		return
	}
	m.journalWrites.Inc()
}

func streamingLabel(streaming bool) string {
	if streaming {
		return "true"
	}
	return "false"
}

// Handler returns the promhttp handler for this registry. Serve it on its
// own listener (Config.Addr) — never mount it under the front door's /v1
// API surface.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry, or nil if metrics
// are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
