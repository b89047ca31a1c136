// Package txtypes holds the wire and in-memory data model shared by every
// rule-engine component: Transaction (decoded by C1), Alert (produced by
// C4), and the transaction decoder itself.
package txtypes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scorpius-io/rule-engine/rerr"
)

// Transaction is immutable after Decode. Every numeric field that may
// exceed 64 bits is carried as a string so precision survives JSON
// round-tripping; callers that need numeric interpretation parse on demand
// (see rules.FieldValue and the uint256-based threshold conditions in
// rules.evaluate.go).
type Transaction struct {
	Hash        string         `json:"hash"`
	ChainID     int64          `json:"chain_id"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Value       string         `json:"value"`
	Gas         string         `json:"gas"`
	GasPrice    string         `json:"gas_price"`
	Data        string         `json:"data"`
	Nonce       string         `json:"nonce"`
	Timestamp   int64          `json:"timestamp"`
	BlockNumber *int64         `json:"block_number,omitempty"`
	TxIndex     *int32         `json:"transaction_index,omitempty"`
	Status      string         `json:"status"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// requiredFields mirrors spec §4.1: absence of any of these is a decode
// failure, not a null attribute.
var requiredFields = []string{"hash", "chain_id", "from", "to", "value", "gas", "gas_price", "data", "nonce", "timestamp", "status"}

// Decode parses a raw broker payload into a Transaction. Known fields are
// promoted to the struct; anything else lands in Attributes. Addresses are
// canonicalized to lowercase hex. Missing required fields produce
// rerr.ErrDecode and the caller drops the one message (spec §4.1's failure
// policy — the pipeline never halts on a single malformed payload).
func Decode(payload []byte) (Transaction, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Transaction{}, fmt.Errorf("%w: invalid json: %v", rerr.ErrDecode, err)
	}

	for _, f := range requiredFields {
		if _, ok := raw[f]; !ok {
			return Transaction{}, fmt.Errorf("%w: missing field %q", rerr.ErrDecode, f)
		}
	}

	tx := Transaction{}
	var err error
	if tx.Hash, err = stringField(raw, "hash"); err != nil {
		return Transaction{}, err
	}
	if tx.ChainID, err = intField(raw, "chain_id"); err != nil {
		return Transaction{}, err
	}
	from, err := stringField(raw, "from")
	if err != nil {
		return Transaction{}, err
	}
	tx.From = strings.ToLower(from)
	to, err := stringField(raw, "to")
	if err != nil {
		return Transaction{}, err
	}
	tx.To = strings.ToLower(to)
	if tx.Value, err = stringField(raw, "value"); err != nil {
		return Transaction{}, err
	}
	if tx.Gas, err = stringField(raw, "gas"); err != nil {
		return Transaction{}, err
	}
	if tx.GasPrice, err = stringField(raw, "gas_price"); err != nil {
		return Transaction{}, err
	}
	if tx.Data, err = stringField(raw, "data"); err != nil {
		return Transaction{}, err
	}
	if tx.Nonce, err = stringField(raw, "nonce"); err != nil {
		return Transaction{}, err
	}
	if tx.Timestamp, err = intField(raw, "timestamp"); err != nil {
		return Transaction{}, err
	}
	if tx.Status, err = stringField(raw, "status"); err != nil {
		return Transaction{}, err
	}
	if bn, ok := raw["block_number"]; ok && bn != nil {
		n, nerr := toInt64(bn)
		if nerr != nil {
			return Transaction{}, fmt.Errorf("%w: block_number: %v", rerr.ErrDecode, nerr)
		}
		tx.BlockNumber = &n
	}
	if ti, ok := raw["transaction_index"]; ok && ti != nil {
		n, nerr := toInt64(ti)
		if nerr != nil {
			return Transaction{}, fmt.Errorf("%w: transaction_index: %v", rerr.ErrDecode, nerr)
		}
		idx := int32(n)
		tx.TxIndex = &idx
	}

	known := map[string]bool{}
	for _, f := range requiredFields {
		known[f] = true
	}
	known["block_number"] = true
	known["transaction_index"] = true

	attrs := make(map[string]any)
	for k, v := range raw {
		if !known[k] {
			attrs[k] = v
		}
	}
	if len(attrs) > 0 {
		tx.Attributes = attrs
	}

	return tx, nil
}

// Encode JSON-serializes a Transaction. Round-tripping Decode(Encode(tx))
// yields an equal Transaction (spec §8's round-trip property).
func (t Transaction) Encode() ([]byte, error) {
	return json.Marshal(t.toWire())
}

func (t Transaction) toWire() map[string]any {
	m := map[string]any{}
	for k, v := range t.Attributes {
		m[k] = v
	}
	m["hash"] = t.Hash
	m["chain_id"] = t.ChainID
	m["from"] = t.From
	m["to"] = t.To
	m["value"] = t.Value
	m["gas"] = t.Gas
	m["gas_price"] = t.GasPrice
	m["data"] = t.Data
	m["nonce"] = t.Nonce
	m["timestamp"] = t.Timestamp
	m["status"] = t.Status
	if t.BlockNumber != nil {
		m["block_number"] = *t.BlockNumber
	}
	if t.TxIndex != nil {
		m["transaction_index"] = *t.TxIndex
	}
	return m
}

func stringField(raw map[string]any, field string) (string, error) {
	v, ok := raw[field].(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", rerr.ErrDecode, field)
	}
	return v, nil
}

func intField(raw map[string]any, field string) (int64, error) {
	n, err := toInt64(raw[field])
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %v", rerr.ErrDecode, field, err)
	}
	return n, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
