// Package pipeline implements the pipeline driver (C5): consume, batch
// (size OR timeout), dispatch each transaction through risk/MEV/rules,
// publish alerts, observe metrics, and shut down cleanly.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/scorpius-io/rule-engine/config"
	"github.com/scorpius-io/rule-engine/metrics"
	"github.com/scorpius-io/rule-engine/rerr"
	"github.com/scorpius-io/rule-engine/risk"
	"github.com/scorpius-io/rule-engine/rlog"
	"github.com/scorpius-io/rule-engine/rules"
	"github.com/scorpius-io/rule-engine/txtypes"
)

const outputPartitionCount = 4

// Driver owns the consumer, producer, batcher, catalog, and executor and
// runs the main loop described by spec §4.5.
type Driver struct {
	cfg      config.Config
	reader   *kafka.Reader
	writer   *kafka.Writer
	catalog  *rules.Catalog
	executor *rules.Executor
	oracle   risk.AddressOracle
	batcher  *batcher

	flushMu sync.Mutex
	wg      sync.WaitGroup
}

// New wires a Driver from cfg. catalog and executor are constructed by the
// caller (cmd/ruleengine/main.go) so they can be shared with any
// diagnostic/admin surface added later.
func New(cfg config.Config, catalog *rules.Catalog, executor *rules.Executor, oracle risk.AddressOracle) *Driver {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.KafkaBrokers},
		Topic:       cfg.InputTopic,
		GroupID:     cfg.ConsumerGroup,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers),
		Topic:                  cfg.OutputTopic,
		Balancer:               nil, // explicit Message.Partition is honored when Balancer is nil
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           0, // spec §5: fire-and-forward, retried explicitly below
	}

	return &Driver{
		cfg:      cfg,
		reader:   reader,
		writer:   writer,
		catalog:  catalog,
		executor: executor,
		oracle:   oracle,
		batcher:  newBatcher(cfg.BatchSize, cfg.BatchTimeout.Duration()),
	}
}

// Run consumes until ctx is canceled, then drains the in-flight batch and
// returns (spec §4.5's shutdown sequence).
func (d *Driver) Run(ctx context.Context) error {
	defer d.writer.Close()
	defer d.reader.Close()

	flushTimer := time.NewTicker(d.cfg.BatchTimeout.Duration())
	defer flushTimer.Stop()

	lagTimer := time.NewTicker(d.cfg.BatchTimeout.Duration())
	defer lagTimer.Stop()

	consumeDone := make(chan struct{})
	go d.consumeLoop(ctx, consumeDone)

	for {
		select {
		case <-ctx.Done():
			<-consumeDone
			d.flush(context.Background())
			d.wg.Wait()
			return nil
		case <-flushTimer.C:
			if d.batcher.dueByTimeout() && d.batcher.len() > 0 {
				d.flush(ctx)
			}
		case <-lagTimer.C:
			metrics.BrokerLag.Set(float64(d.reader.Stats().Lag))
		}
	}
}

// consumeLoop pulls messages off the input topic and feeds the batcher,
// triggering a size-based flush inline. A ConsumeError sleeps one second
// and retries (spec §7); the loop exits once ctx is canceled.
func (d *Driver) consumeLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		msg, err := d.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.BrokerErrors.WithLabelValues("consume").Inc()
			rlog.Error("consume failed", "error", fmt.Errorf("%w: %v", rerr.ErrConsume, err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		tx, err := txtypes.Decode(msg.Value)
		if err != nil {
			metrics.DecodeErrors.Inc()
			rlog.Error("decode failed", "error", err)
			continue
		}

		if d.batcher.add(tx) {
			d.flush(ctx)
		}
	}
}

// flush runs the catalog refresh check (spec §4.5), drains the batcher,
// and dispatches every transaction in the drained batch. Batches flush
// strictly sequentially: flush does not return until every transaction in
// this batch has been submitted to the output broker (spec §5). flushMu
// serializes the two callers (consumeLoop's size trigger and Run's timeout
// trigger) so a batch N+1 never starts dispatching while batch N is still
// in flight.
func (d *Driver) flush(ctx context.Context) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	if d.catalog.DueForReload(d.cfg.RuleReloadInterval.Duration()) {
		if err := d.catalog.Reload(ctx); err != nil {
			rlog.Warn("catalog reload failed, continuing with previous snapshot", "error", err)
		}
	}

	batch := d.batcher.drain()
	if len(batch) == 0 {
		return
	}

	snap := d.catalog.Current()
	var wg sync.WaitGroup
	for _, tx := range batch {
		tx := tx
		wg.Add(1)
		d.wg.Add(1)
		go func() {
			defer wg.Done()
			defer d.wg.Done()
			d.dispatch(ctx, tx, snap)
		}()
	}
	wg.Wait()
}

// dispatch runs one transaction through risk scoring, MEV detection, and
// rule execution, then publishes every alert produced (spec §4.5 step 1-5).
func (d *Driver) dispatch(ctx context.Context, tx txtypes.Transaction, snap *rules.Snapshot) {
	defer metrics.RecordTransactionDuration(time.Now())
	metrics.TransactionsProcessed.Inc()

	score := risk.Score(tx, d.oracle)
	metrics.RiskScore.Observe(score)

	for _, pattern := range risk.DetectMEV(tx, d.cfg.MEV) {
		metrics.MEVPatternsDetected.WithLabelValues(string(pattern.Kind)).Inc()
	}

	result := d.executor.Run(ctx, tx, snap)
	for _, alert := range result.Alerts {
		d.publish(ctx, alert)
	}
}

// publish sends one alert, retried once on failure, then dropped and
// counted (spec §7's PublishError policy).
func (d *Driver) publish(ctx context.Context, alert txtypes.Alert) {
	body, err := json.Marshal(alert)
	if err != nil {
		rlog.Error("alert encode failed", "alert_id", alert.ID, "error", err)
		return
	}

	msg := kafka.Message{
		Key:       []byte(alert.PartitionKey()),
		Value:     body,
		Partition: int(txtypes.Partition(alert.ChainID, outputPartitionCount)),
	}

	var pubErr error
	for attempt := 0; attempt < 2; attempt++ {
		pubErr = d.writer.WriteMessages(ctx, msg)
		if pubErr == nil {
			return
		}
	}

	metrics.BrokerErrors.WithLabelValues("publish").Inc()
	rlog.Error("alert publish failed, dropping", "alert_id", alert.ID, "error", fmt.Errorf("%w: %v", rerr.ErrPublish, pubErr))
}
