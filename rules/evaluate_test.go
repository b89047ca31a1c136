package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scorpius-io/rule-engine/txtypes"
)

func txFixture(t *testing.T) txtypes.Transaction {
	t.Helper()
	tx, err := txtypes.Decode([]byte(`{
		"hash":"0x123","chain_id":1,"from":"0xaaaa","to":"0xbbbb",
		"value":"1000000000000000000","gas":"21000","gas_price":"1000000000",
		"data":"0x","nonce":"1","timestamp":1700000000,"status":"pending"
	}`))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return tx
}

func TestEvaluateCondition_ValueComparison(t *testing.T) {
	tx := txFixture(t)
	tests := []struct {
		name string
		cond ValueComparison
		want bool
	}{
		{"gt true via uint256 path", ValueComparison{Field: "value", Operator: OpGt, Value: "500000000000000000"}, true},
		{"gt false", ValueComparison{Field: "value", Operator: OpGt, Value: "2000000000000000000"}, false},
		{"eq string", ValueComparison{Field: "status", Operator: OpEq, Value: "pending"}, true},
		{"ne string", ValueComparison{Field: "status", Operator: OpNe, Value: "pending"}, false},
		{"contains", ValueComparison{Field: "hash", Operator: OpContains, Value: "123"}, true},
		{"starts_with", ValueComparison{Field: "hash", Operator: OpStartsWith, Value: "0x1"}, true},
		{"ends_with false", ValueComparison{Field: "hash", Operator: OpEndsWith, Value: "999"}, false},
		{"in membership", ValueComparison{Field: "chain_id", Operator: OpIn, Value: []any{float64(1), float64(2)}}, true},
		{"not_in membership", ValueComparison{Field: "chain_id", Operator: OpNotIn, Value: []any{float64(1), float64(2)}}, false},
		{"in non-array rhs is false", ValueComparison{Field: "chain_id", Operator: OpIn, Value: "not-an-array"}, false},
		{"not_in non-array rhs is true", ValueComparison{Field: "chain_id", Operator: OpNotIn, Value: "not-an-array"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tx, tt.cond))
		})
	}
}

func TestEvaluateCondition_AddressMatch_CaseInsensitive(t *testing.T) {
	tx := txFixture(t)
	tx.To = "0xaabbccddeeff00112233445566778899aabbccdd"
	cond := AddressMatch{Field: "to", Addresses: []string{"0xAABBCCDDEEFF00112233445566778899AABBCCDD"}}
	assert.True(t, EvaluateCondition(tx, cond))
}

func TestEvaluateCondition_ContractCall_FunctionSignaturePrefix(t *testing.T) {
	tx := txFixture(t)
	tx.To = "0xrouter"
	tx.Data = "0x38ed1739deadbeef"

	match := ContractCall{ContractAddress: "0xRouter", FunctionSignature: "0x38ed1739"}
	assert.True(t, EvaluateCondition(tx, match), "prefix should match")

	noMatch := ContractCall{ContractAddress: "0xRouter", FunctionSignature: "0x38ed173a"}
	assert.False(t, EvaluateCondition(tx, noMatch), "different signature should not match")
}

func TestEvaluateConditions_ShortCircuit(t *testing.T) {
	tx := txFixture(t) // chain_id = 1

	conditions := []Condition{
		ChainFilter{ChainIDs: []int64{137}},
		PatternMatch{Field: "data", Pattern: "(.*", Regex: true},
	}

	assert.False(t, EvaluateConditions(tx, conditions))
	// The invalid regex must never have been compiled/cached: no entry for it.
	_, seen := patternCache.Get("(.*")
	assert.False(t, seen, "invalid regex must not be compiled when ChainFilter already failed")
	_, failed := compileFailures.Get("(.*")
	assert.False(t, failed, "no compile failure should have been recorded")
}

func TestEvaluateCondition_GasAnalysis(t *testing.T) {
	tx := txFixture(t)
	min := "500000000"
	max := "2000000000"
	cond := GasAnalysis{MinGasPrice: &min, MaxGasPrice: &max}
	assert.True(t, EvaluateCondition(tx, cond))

	tooHigh := "100"
	condFail := GasAnalysis{MaxGasPrice: &tooHigh}
	assert.False(t, EvaluateCondition(tx, condFail))
}

func TestEvaluateCondition_ValueThreshold_Boundaries(t *testing.T) {
	tx := txFixture(t)
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"zero", "0", true},
		{"one", "1", true},
		{"max u128 (2^128 minus one)", "340282366920938463463374607431768211455", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx.Value = tt.value
			zero := "0"
			max := "340282366920938463463374607431768211455"
			cond := ValueThreshold{Field: "value", MinValue: &zero, MaxValue: &max}
			assert.Equal(t, tt.want, EvaluateCondition(tx, cond))
		})
	}
}

func TestEvaluateCondition_TimeWindow(t *testing.T) {
	tx := txFixture(t)
	ts := time.Unix(tx.Timestamp, 0).UTC()
	start := ts.Add(-time.Hour)
	end := ts.Add(time.Hour)
	assert.True(t, EvaluateCondition(tx, TimeWindow{StartTime: &start, EndTime: &end}))

	pastEnd := ts.Add(-time.Minute)
	assert.False(t, EvaluateCondition(tx, TimeWindow{EndTime: &pastEnd}))
}

func TestEvaluateCondition_Reserved_AlwaysFalse(t *testing.T) {
	tx := txFixture(t)
	assert.False(t, EvaluateCondition(tx, MEVDetection{Flags: map[string]bool{"anything": true}}))
	assert.False(t, EvaluateCondition(tx, Custom{Code: "return true"}))
}

func TestEvaluateCondition_PatternMatch(t *testing.T) {
	tx := txFixture(t)
	tx.Data = "0xdeadbeef"

	assert.True(t, EvaluateCondition(tx, PatternMatch{Field: "data", Pattern: "dead", Regex: false}))
	assert.True(t, EvaluateCondition(tx, PatternMatch{Field: "data", Pattern: "^0xdead", Regex: true}))
	assert.False(t, EvaluateCondition(tx, PatternMatch{Field: "data", Pattern: "^0xfeed", Regex: true}))
	assert.False(t, EvaluateCondition(tx, PatternMatch{Field: "data", Pattern: "(invalid(", Regex: true}))
}

func TestEmptyConditionListMatchesEverything(t *testing.T) {
	tx := txFixture(t)
	assert.True(t, EvaluateConditions(tx, nil))
}

func TestFieldValue_FallsBackToAttributes(t *testing.T) {
	tx := txFixture(t)
	tx.Attributes = map[string]any{"mempool_source": "flashbots"}
	assert.Equal(t, "flashbots", FieldValue(tx, "mempool_source"))
	assert.Nil(t, FieldValue(tx, "does_not_exist"))
}
