// Package metrics adapts the teacher's package-level registered-metric
// style (preconf/metrics.go's var block of gauges/meters/timers plus
// MetricsXxx helper functions) to prometheus/client_golang, since the
// required exposition format here is the Prometheus text format (spec
// §6) rather than go-ethereum's native metrics registry.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scorpius-io/rule-engine/rlog"
)

var (
	TransactionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rule_engine_transactions_processed_total",
		Help: "Transactions pulled off the input topic and dispatched.",
	})

	RulesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rule_engine_rules_executed_total",
		Help: "Matching rules whose actions were run, across all transactions.",
	})

	RuleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rule_engine_rule_failures_total",
		Help: "Rule evaluations that timed out, panicked, or errored.",
	})

	AlertsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rule_engine_alerts_generated_total",
		Help: "CreateAlert actions that produced an Alert.",
	})

	BrokerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rule_engine_broker_errors_total",
		Help: "Consume or publish errors, labeled by direction.",
	}, []string{"direction"})

	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rule_engine_store_errors_total",
		Help: "Rule-catalog reloads that failed against the relational store.",
	})

	MEVPatternsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rule_engine_mev_patterns_detected_total",
		Help: "MEV patterns detected, labeled by kind.",
	}, []string{"kind"})

	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rule_engine_decode_errors_total",
		Help: "Malformed input payloads dropped by the transaction decoder.",
	})

	TransactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rule_engine_transaction_duration_seconds",
		Help:    "Wall time to run risk/MEV/rules for one transaction.",
		Buckets: prometheus.DefBuckets,
	})

	RuleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rule_engine_rule_duration_seconds",
		Help:    "Wall time to run one matching rule's actions.",
		Buckets: prometheus.DefBuckets,
	})

	RiskScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rule_engine_risk_score",
		Help:    "Distribution of per-transaction risk scores.",
		Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	ActiveRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rule_engine_active_rules",
		Help: "Number of enabled rules in the current catalog snapshot.",
	})

	BrokerLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rule_engine_broker_lag",
		Help: "Estimated consumer lag on the input topic, in messages.",
	})

	MemoryUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rule_engine_memory_utilization_bytes",
		Help: "System-wide memory in use, in bytes, sampled periodically.",
	})

	CPUUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rule_engine_cpu_utilization_percent",
		Help: "System-wide CPU utilization percentage, sampled periodically.",
	})
)

// RecordRuleDuration mirrors the teacher's MetricsPreconfExecuteCost(start
// time.Time) convention: call defer metrics.RecordRuleDuration(time.Now())
// at the top of the timed section.
func RecordRuleDuration(start time.Time) {
	RuleDuration.Observe(time.Since(start).Seconds())
}

func RecordTransactionDuration(start time.Time) {
	TransactionDuration.Observe(time.Since(start).Seconds())
}

// Serve starts the Prometheus exposition endpoint and blocks until ctx is
// canceled, then shuts the server down gracefully.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		rlog.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
