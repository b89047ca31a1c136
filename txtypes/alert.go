package txtypes

import (
	"time"

	"github.com/google/uuid"
)

// Severity is a closed set; new values require touching every switch that
// matches on it, the same discipline the spec asks of Condition and Action
// variants.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is produced by the rule executor's CreateAlert action and consumed
// by the pipeline driver, which publishes it to the output topic.
type Alert struct {
	ID              uuid.UUID      `json:"id"`
	RuleID          uuid.UUID      `json:"rule_id"`
	TransactionHash string         `json:"transaction_hash"`
	ChainID         int64          `json:"chain_id"`
	Severity        Severity       `json:"severity"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Tags            []string       `json:"tags,omitempty"`
}

// PartitionKey returns the output-topic key: the transaction hash, so the
// broker's single-partition ordering guarantee preserves publish order per
// transaction (spec §5).
func (a Alert) PartitionKey() string { return a.TransactionHash }

// Partition implements chain_id mod 4 (spec §5/§6): a stable mapping so
// reprocessing the same chain always lands on the same partition.
func Partition(chainID int64, partitions int64) int64 {
	m := chainID % partitions
	if m < 0 {
		m += partitions
	}
	return m
}
