// Package rules implements the rule DSL (condition/action tagged variants
// and their evaluator, C3), the rule catalog (C2), and the rule executor
// (C4). Condition and Action are closed sum types: every concrete type
// implements a private marker method so a new variant can only be added
// inside this package, and every switch over them carries a default branch
// that panics, so a missed case surfaces immediately instead of silently
// evaluating to false.
package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Rule is the unit of catalog storage: an ordered condition list (ANDed,
// no top-level OR — authors compose OR with multiple rules) and an ordered
// action list, run in declared order when the rule fires.
type Rule struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Conditions  []Condition `json:"conditions"`
	Actions     []Action    `json:"actions"`
	Enabled     bool        `json:"enabled"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Operator enumerates ValueComparison's comparison kinds (spec §3).
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGe         Operator = "ge"
	OpLe         Operator = "le"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
)

// Condition is the sealed condition interface; conditionKind() is
// unexported so no type outside this package can satisfy it.
type Condition interface {
	conditionKind() string
}

type ValueComparison struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

type AddressMatch struct {
	Field     string   `json:"field"`
	Addresses []string `json:"addresses"`
}

type ContractCall struct {
	ContractAddress   string `json:"contract_address"`
	FunctionSignature string `json:"function_signature"`
	Parameters        any    `json:"parameters,omitempty"`
}

type GasAnalysis struct {
	MinGasPrice       *string `json:"min_gas_price,omitempty"`
	MaxGasPrice       *string `json:"max_gas_price,omitempty"`
	GasLimitThreshold *string `json:"gas_limit_threshold,omitempty"`
}

type ValueThreshold struct {
	Field    string  `json:"field"`
	MinValue *string `json:"min_value,omitempty"`
	MaxValue *string `json:"max_value,omitempty"`
}

type TimeWindow struct {
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
}

type ChainFilter struct {
	ChainIDs []int64 `json:"chain_ids"`
}

// MEVDetection is a reserved placeholder (spec §3/§9): it must always
// evaluate false in this revision, but the variant and its serialized form
// are preserved so existing rule rows stay valid.
type MEVDetection struct {
	Flags map[string]bool `json:"flags,omitempty"`
}

type PatternMatch struct {
	Field   string `json:"field"`
	Pattern string `json:"pattern"`
	Regex   bool   `json:"regex"`
}

// Custom is the reserved sandboxed-code placeholder (spec §1 Non-goals):
// always evaluates false.
type Custom struct {
	Code       string `json:"code"`
	Parameters any    `json:"parameters,omitempty"`
}

func (ValueComparison) conditionKind() string { return "value_comparison" }
func (AddressMatch) conditionKind() string    { return "address_match" }
func (ContractCall) conditionKind() string    { return "contract_call" }
func (GasAnalysis) conditionKind() string     { return "gas_analysis" }
func (ValueThreshold) conditionKind() string  { return "value_threshold" }
func (TimeWindow) conditionKind() string      { return "time_window" }
func (ChainFilter) conditionKind() string     { return "chain_filter" }
func (MEVDetection) conditionKind() string    { return "mev_detection" }
func (PatternMatch) conditionKind() string    { return "pattern_match" }
func (Custom) conditionKind() string          { return "custom" }

// Action is the sealed action interface, mirroring Condition.
type Action interface {
	actionKind() string
}

type CreateAlert struct {
	Severity    string         `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type SendNotification struct {
	Channels []string `json:"channels,omitempty"`
	Message  string   `json:"message"`
	Priority string   `json:"priority"`
}

type StoreInDatabase struct {
	Table string `json:"table"`
	Data  any    `json:"data,omitempty"`
}

type CallWebhook struct {
	URL     string `json:"url"`
	Method  string `json:"method"`
	Headers any    `json:"headers,omitempty"`
	Body    any    `json:"body,omitempty"`
}

type UpdateWatchlist struct {
	Action    string   `json:"action"`
	Addresses []string `json:"addresses"`
}

type CustomAction struct {
	Code       string `json:"code"`
	Parameters any    `json:"parameters,omitempty"`
}

func (CreateAlert) actionKind() string      { return "create_alert" }
func (SendNotification) actionKind() string { return "send_notification" }
func (StoreInDatabase) actionKind() string  { return "store_in_database" }
func (CallWebhook) actionKind() string      { return "call_webhook" }
func (UpdateWatchlist) actionKind() string  { return "update_watchlist" }
func (CustomAction) actionKind() string     { return "custom" }

// --- JSON marshaling: {"type": "<kind>", ...fields} ---

// marshalTagged encodes v's fields plus a "type" discriminator. v is first
// converted to an unnamed struct type with the same fields, so encoding it
// does not call v's own MarshalJSON again.
func marshalTagged(kind string, v any) ([]byte, error) {
	t := reflect.TypeOf(v)
	fields := make([]reflect.StructField, t.NumField())
	for i := range fields {
		fields[i] = t.Field(i)
	}
	plain := reflect.ValueOf(v).Convert(reflect.StructOf(fields)).Interface()
	body, err := json.Marshal(plain)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	m["type"] = json.RawMessage(fmt.Sprintf("%q", kind))
	return json.Marshal(m)
}

func (c ValueComparison) MarshalJSON() ([]byte, error) { return marshalTagged(c.conditionKind(), struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}{c.Field, c.Operator, c.Value}) }

func (c AddressMatch) MarshalJSON() ([]byte, error) { return marshalTagged(c.conditionKind(), c) }
func (c ContractCall) MarshalJSON() ([]byte, error) { return marshalTagged(c.conditionKind(), c) }
func (c GasAnalysis) MarshalJSON() ([]byte, error)  { return marshalTagged(c.conditionKind(), c) }
func (c ValueThreshold) MarshalJSON() ([]byte, error) { return marshalTagged(c.conditionKind(), c) }
func (c TimeWindow) MarshalJSON() ([]byte, error)   { return marshalTagged(c.conditionKind(), c) }
func (c ChainFilter) MarshalJSON() ([]byte, error)  { return marshalTagged(c.conditionKind(), c) }
func (c MEVDetection) MarshalJSON() ([]byte, error) { return marshalTagged(c.conditionKind(), c) }
func (c PatternMatch) MarshalJSON() ([]byte, error) { return marshalTagged(c.conditionKind(), c) }
func (c Custom) MarshalJSON() ([]byte, error)       { return marshalTagged(c.conditionKind(), c) }

func (a CreateAlert) MarshalJSON() ([]byte, error)      { return marshalTagged(a.actionKind(), a) }
func (a SendNotification) MarshalJSON() ([]byte, error) { return marshalTagged(a.actionKind(), a) }
func (a StoreInDatabase) MarshalJSON() ([]byte, error)  { return marshalTagged(a.actionKind(), a) }
func (a CallWebhook) MarshalJSON() ([]byte, error)      { return marshalTagged(a.actionKind(), a) }
func (a UpdateWatchlist) MarshalJSON() ([]byte, error)  { return marshalTagged(a.actionKind(), a) }
func (a CustomAction) MarshalJSON() ([]byte, error)     { return marshalTagged(a.actionKind(), a) }

// unmarshalCondition dispatches on the "type" discriminator, the Go analogue of
// the Rust side's #[serde(tag = "type")] enums.
func unmarshalCondition(raw json.RawMessage) (Condition, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	switch env.Type {
	case "value_comparison":
		var c ValueComparison
		return c, json.Unmarshal(raw, &c)
	case "address_match":
		var c AddressMatch
		return c, json.Unmarshal(raw, &c)
	case "contract_call":
		var c ContractCall
		return c, json.Unmarshal(raw, &c)
	case "gas_analysis":
		var c GasAnalysis
		return c, json.Unmarshal(raw, &c)
	case "value_threshold":
		var c ValueThreshold
		return c, json.Unmarshal(raw, &c)
	case "time_window":
		var c TimeWindow
		return c, json.Unmarshal(raw, &c)
	case "chain_filter":
		var c ChainFilter
		return c, json.Unmarshal(raw, &c)
	case "mev_detection":
		var c MEVDetection
		return c, json.Unmarshal(raw, &c)
	case "pattern_match":
		var c PatternMatch
		return c, json.Unmarshal(raw, &c)
	case "custom":
		var c Custom
		return c, json.Unmarshal(raw, &c)
	default:
		return nil, fmt.Errorf("condition: unknown type %q", env.Type)
	}
}

func unmarshalAction(raw json.RawMessage) (Action, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}
	switch env.Type {
	case "create_alert":
		var a CreateAlert
		return a, json.Unmarshal(raw, &a)
	case "send_notification":
		var a SendNotification
		return a, json.Unmarshal(raw, &a)
	case "store_in_database":
		var a StoreInDatabase
		return a, json.Unmarshal(raw, &a)
	case "call_webhook":
		var a CallWebhook
		return a, json.Unmarshal(raw, &a)
	case "update_watchlist":
		var a UpdateWatchlist
		return a, json.Unmarshal(raw, &a)
	case "custom":
		var a CustomAction
		return a, json.Unmarshal(raw, &a)
	default:
		return nil, fmt.Errorf("action: unknown type %q", env.Type)
	}
}

// ConditionList and ActionList give Rule JSON (de)serialization over the
// interface slices, since encoding/json can't polymorphically unmarshal
// []Condition on its own.
type ConditionList []Condition
type ActionList []Action

func (l *ConditionList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(ConditionList, 0, len(raws))
	for _, raw := range raws {
		c, err := unmarshalCondition(raw)
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

func (l *ActionList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(ActionList, 0, len(raws))
	for _, raw := range raws {
		a, err := unmarshalAction(raw)
		if err != nil {
			return err
		}
		out = append(out, a)
	}
	*l = out
	return nil
}

// ruleWire is Rule's wire shape: Conditions/Actions go through ConditionList/
// ActionList so JSON round-trips through the sealed interfaces correctly.
type ruleWire struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Conditions  ConditionList `json:"conditions"`
	Actions     ActionList    `json:"actions"`
	Enabled     bool          `json:"enabled"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleWire{r.ID, r.Name, r.Description, ConditionList(r.Conditions), ActionList(r.Actions), r.Enabled, r.CreatedAt, r.UpdatedAt})
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var w ruleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.Name = w.Name
	r.Description = w.Description
	r.Conditions = []Condition(w.Conditions)
	r.Actions = []Action(w.Actions)
	r.Enabled = w.Enabled
	r.CreatedAt = w.CreatedAt
	r.UpdatedAt = w.UpdatedAt
	return nil
}
