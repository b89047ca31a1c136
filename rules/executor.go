package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/scorpius-io/rule-engine/metrics"
	"github.com/scorpius-io/rule-engine/rerr"
	"github.com/scorpius-io/rule-engine/rlog"
	"github.com/scorpius-io/rule-engine/txtypes"
)

// Intent is the structured record emitted for every non-CreateAlert action
// (spec §4.4 point 4): downstream handlers for notifications, database
// writes, webhooks, and watchlist updates are out of scope for the core,
// so the executor only logs and counts the intent.
type Intent struct {
	RuleID     uuid.UUID
	ActionKind string
	Parameters any
}

// Executor bounds concurrent rule evaluation with a process-wide semaphore
// (spec §4.4/§5) and enforces a per-rule timeout.
type Executor struct {
	sem         *semaphore.Weighted
	ruleTimeout time.Duration
}

func NewExecutor(maxConcurrentRules int, ruleTimeout time.Duration) *Executor {
	return &Executor{
		sem:         semaphore.NewWeighted(int64(maxConcurrentRules)),
		ruleTimeout: ruleTimeout,
	}
}

// Result is one transaction's dispatch output.
type Result struct {
	Alerts  []txtypes.Alert
	Intents []Intent
}

// Run filters snap to rules whose conjunction matches tx, then executes
// each matching rule's action list with bounded concurrency. A rule that
// times out or panics is isolated: it's counted as a failure and does not
// cancel siblings or drop alerts already produced by other rules (spec
// §4.4's concurrency/failure-isolation requirements).
func (e *Executor) Run(ctx context.Context, tx txtypes.Transaction, snap *Snapshot) Result {
	matching := make([]Rule, 0, len(snap.Rules))
	for _, r := range snap.Rules {
		if !r.Enabled {
			continue
		}
		if EvaluateConditions(tx, r.Conditions) {
			matching = append(matching, r)
		}
	}

	results := make(chan ruleOutcome, len(matching))
	for _, r := range matching {
		r := r
		go func() {
			results <- e.runOne(ctx, tx, r)
		}()
	}

	var out Result
	for range matching {
		rr := <-results
		out.Alerts = append(out.Alerts, rr.alerts...)
		out.Intents = append(out.Intents, rr.intents...)
	}
	return out
}

type ruleOutcome struct {
	alerts  []txtypes.Alert
	intents []Intent
}

func (e *Executor) runOne(ctx context.Context, tx txtypes.Transaction, r Rule) ruleOutcome {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		metrics.RuleFailures.Inc()
		rlog.Error("rule permit acquire failed", "rule_id", r.ID, "error", err)
		return ruleOutcome{}
	}
	defer e.sem.Release(1)

	ruleCtx, cancel := context.WithTimeout(ctx, e.ruleTimeout)
	defer cancel()

	defer metrics.RecordRuleDuration(time.Now())
	metrics.RulesExecuted.Inc()

	done := make(chan ruleOutcome, 1)
	go func() {
		var out ruleOutcome
		defer func() {
			if p := recover(); p != nil {
				rlog.Error("rule execution panicked", "rule_id", r.ID, "panic", p)
				metrics.RuleFailures.Inc()
				out = ruleOutcome{}
			}
			done <- out
		}()
		for _, action := range r.Actions {
			alert, intent, isAlert := e.runAction(tx, r, action)
			if isAlert {
				out.alerts = append(out.alerts, alert)
			} else {
				out.intents = append(out.intents, intent)
			}
		}
	}()

	select {
	case out := <-done:
		return out
	case <-ruleCtx.Done():
		metrics.RuleFailures.Inc()
		err := fmt.Errorf("%w: rule %s timed out after %s", rerr.ErrEvaluation, r.ID, e.ruleTimeout)
		rlog.Error("rule execution timed out", "rule_id", r.ID, "error", err)
		return ruleOutcome{}
	}
}

// runAction dispatches one action. The default branch panics: every new
// Action variant must be added here.
func (e *Executor) runAction(tx txtypes.Transaction, r Rule, action Action) (alert txtypes.Alert, intent Intent, isAlert bool) {
	switch a := action.(type) {
	case CreateAlert:
		metrics.AlertsGenerated.Inc()
		return txtypes.Alert{
			ID:              uuid.New(),
			RuleID:          r.ID,
			TransactionHash: tx.Hash,
			ChainID:         tx.ChainID,
			Severity:        txtypes.Severity(a.Severity),
			Title:           Interpolate(a.Title, tx),
			Description:     Interpolate(a.Description, tx),
			Metadata:        cloneMetadata(a.Metadata),
			CreatedAt:       time.Now().UTC(),
			Tags:            append([]string(nil), a.Tags...),
		}, Intent{}, true
	case SendNotification:
		return txtypes.Alert{}, logIntent(r.ID, "send_notification", a), false
	case StoreInDatabase:
		return txtypes.Alert{}, logIntent(r.ID, "store_in_database", a), false
	case CallWebhook:
		return txtypes.Alert{}, logIntent(r.ID, "call_webhook", a), false
	case UpdateWatchlist:
		return txtypes.Alert{}, logIntent(r.ID, "update_watchlist", a), false
	case CustomAction:
		return txtypes.Alert{}, logIntent(r.ID, "custom", a), false
	default:
		panic(fmt.Sprintf("rules: unhandled action kind %T", action))
	}
}

func logIntent(ruleID uuid.UUID, kind string, params any) Intent {
	rlog.Info("action intent", "rule_id", ruleID, "kind", kind, "parameters", params)
	return Intent{RuleID: ruleID, ActionKind: kind, Parameters: params}
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
