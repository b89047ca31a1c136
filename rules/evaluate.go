package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"

	"github.com/scorpius-io/rule-engine/rlog"
	"github.com/scorpius-io/rule-engine/txtypes"
)

// firstClassFields maps a DSL field name to an accessor on Transaction; any
// other name falls back to tx.Attributes.
var firstClassFields = map[string]func(tx txtypes.Transaction) any{
	"hash":              func(tx txtypes.Transaction) any { return tx.Hash },
	"chain_id":          func(tx txtypes.Transaction) any { return tx.ChainID },
	"from":              func(tx txtypes.Transaction) any { return tx.From },
	"to":                func(tx txtypes.Transaction) any { return tx.To },
	"value":             func(tx txtypes.Transaction) any { return tx.Value },
	"gas":               func(tx txtypes.Transaction) any { return tx.Gas },
	"gas_price":         func(tx txtypes.Transaction) any { return tx.GasPrice },
	"data":              func(tx txtypes.Transaction) any { return tx.Data },
	"nonce":             func(tx txtypes.Transaction) any { return tx.Nonce },
	"timestamp":         func(tx txtypes.Transaction) any { return tx.Timestamp },
	"status":            func(tx txtypes.Transaction) any { return tx.Status },
	"block_number":      func(tx txtypes.Transaction) any { return derefInt64(tx.BlockNumber) },
	"transaction_index": func(tx txtypes.Transaction) any { return derefInt32(tx.TxIndex) },
}

func derefInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefInt32(p *int32) any {
	if p == nil {
		return nil
	}
	return *p
}

// FieldValue resolves field against a transaction's first-class fields,
// falling back to its attribute map (spec §4.3).
func FieldValue(tx txtypes.Transaction, field string) any {
	if accessor, ok := firstClassFields[field]; ok {
		return accessor(tx)
	}
	if tx.Attributes == nil {
		return nil
	}
	v, ok := tx.Attributes[field]
	if !ok {
		return nil
	}
	return v
}

// patternCache memoizes compiled regexes, bounded so a stream of unique
// patterns can't grow it unboundedly. A compile failure is logged once per
// unique pattern (tracked by compileFailures) and thereafter just returns
// false without re-logging.
var patternCache, _ = lru.New[string, *regexp.Regexp](1024)
var compileFailures, _ = lru.New[string, struct{}](1024)

func compiledPattern(pattern string) (*regexp.Regexp, bool) {
	if re, ok := patternCache.Get(pattern); ok {
		return re, true
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		if _, seen := compileFailures.Get(pattern); !seen {
			compileFailures.Add(pattern, struct{}{})
			rlog.Warn("pattern compile failed", "pattern", pattern, "error", err)
		}
		return nil, false
	}
	patternCache.Add(pattern, re)
	return re, true
}

// EvaluateConditions runs the conjunction in declared order, halting on the
// first false (spec §4.3/§8's short-circuit invariant).
func EvaluateConditions(tx txtypes.Transaction, conditions []Condition) bool {
	for _, c := range conditions {
		if !EvaluateCondition(tx, c) {
			return false
		}
	}
	return true
}

// EvaluateCondition dispatches on the concrete Condition type. The default
// branch panics: every new Condition variant must be added here.
func EvaluateCondition(tx txtypes.Transaction, c Condition) bool {
	switch cond := c.(type) {
	case ValueComparison:
		return evalValueComparison(tx, cond)
	case AddressMatch:
		return evalAddressMatch(tx, cond)
	case ContractCall:
		return evalContractCall(tx, cond)
	case GasAnalysis:
		return evalGasAnalysis(tx, cond)
	case ValueThreshold:
		return evalValueThreshold(tx, cond)
	case TimeWindow:
		return evalTimeWindow(tx, cond)
	case ChainFilter:
		return evalChainFilter(tx, cond)
	case MEVDetection:
		return false
	case PatternMatch:
		return evalPatternMatch(tx, cond)
	case Custom:
		return false
	default:
		panic(fmt.Sprintf("rules: unhandled condition kind %T", c))
	}
}

func evalValueComparison(tx txtypes.Transaction, c ValueComparison) bool {
	lhs := FieldValue(tx, c.Field)
	switch c.Operator {
	case OpEq:
		return valuesEqual(lhs, c.Value)
	case OpNe:
		return !valuesEqual(lhs, c.Value)
	case OpGt:
		return compareNumeric(lhs, c.Value, func(cmp int) bool { return cmp > 0 })
	case OpLt:
		return compareNumeric(lhs, c.Value, func(cmp int) bool { return cmp < 0 })
	case OpGe:
		return compareNumeric(lhs, c.Value, func(cmp int) bool { return cmp >= 0 })
	case OpLe:
		return compareNumeric(lhs, c.Value, func(cmp int) bool { return cmp <= 0 })
	case OpContains:
		ls, lok := lhs.(string)
		rs, rok := c.Value.(string)
		return lok && rok && strings.Contains(ls, rs)
	case OpStartsWith:
		ls, lok := lhs.(string)
		rs, rok := c.Value.(string)
		return lok && rok && strings.HasPrefix(ls, rs)
	case OpEndsWith:
		ls, lok := lhs.(string)
		rs, rok := c.Value.(string)
		return lok && rok && strings.HasSuffix(ls, rs)
	case OpIn:
		return membership(lhs, c.Value)
	case OpNotIn:
		return !membership(lhs, c.Value)
	default:
		panic(fmt.Sprintf("rules: unhandled operator %q", c.Operator))
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func membership(lhs, rhsList any) bool {
	arr, ok := rhsList.([]any)
	if !ok {
		return false
	}
	for _, item := range arr {
		if valuesEqual(lhs, item) {
			return true
		}
	}
	return false
}

// compareNumeric implements spec §4.3's normative tie-break, upgraded per
// the §9 REDESIGN note: try an integer-first comparison via uint256 (exact
// up to 2^256-1), and only fall back to the float64 comparison the
// original used when either side isn't a clean unsigned integer string.
// The fallback therefore still loses precision beyond 2^53 for operands
// that aren't valid u256 strings; that residual imprecision is inherited
// from the spec and is intentional, not an oversight.
func compareNumeric(lhs, rhs any, test func(cmp int) bool) bool {
	if lhs == nil || rhs == nil {
		return false
	}
	if lu, ru, ok := bothAsUint256(lhs, rhs); ok {
		return test(lu.Cmp(ru))
	}
	lf, lok := asFloat64(lhs)
	rf, rok := asFloat64(rhs)
	if !lok || !rok {
		return false
	}
	switch {
	case lf < rf:
		return test(-1)
	case lf > rf:
		return test(1)
	default:
		return test(0)
	}
}

func bothAsUint256(lhs, rhs any) (*uint256.Int, *uint256.Int, bool) {
	l, ok := asUint256(lhs)
	if !ok {
		return nil, nil, false
	}
	r, ok := asUint256(rhs)
	if !ok {
		return nil, nil, false
	}
	return l, r, true
}

func asUint256(v any) (*uint256.Int, bool) {
	s, ok := asDecimalString(v)
	if !ok {
		return nil, false
	}
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, false
	}
	return n, true
}

// asDecimalString accepts the string shapes Transaction fields and JSON
// numeric literals can take; it rejects anything with a sign or a
// fractional part, since uint256 is unsigned-integer-only.
func asDecimalString(v any) (string, bool) {
	switch n := v.(type) {
	case string:
		if n == "" || strings.ContainsAny(n, ".-") {
			return "", false
		}
		return n, true
	case int64:
		if n < 0 {
			return "", false
		}
		return strconv.FormatInt(n, 10), true
	case int32:
		if n < 0 {
			return "", false
		}
		return strconv.FormatInt(int64(n), 10), true
	case float64:
		if n < 0 || n != float64(int64(n)) {
			return "", false
		}
		return strconv.FormatInt(int64(n), 10), true
	default:
		return "", false
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func evalAddressMatch(tx txtypes.Transaction, c AddressMatch) bool {
	v := FieldValue(tx, c.Field)
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.ToLower(s)
	for _, addr := range c.Addresses {
		if strings.ToLower(addr) == s {
			return true
		}
	}
	return false
}

func evalContractCall(tx txtypes.Transaction, c ContractCall) bool {
	if !strings.EqualFold(tx.To, c.ContractAddress) {
		return false
	}
	return strings.HasPrefix(tx.Data, c.FunctionSignature)
}

func evalGasAnalysis(tx txtypes.Transaction, c GasAnalysis) bool {
	price, ok := asUint256(tx.GasPrice)
	if !ok {
		return false
	}
	if c.MinGasPrice != nil {
		min, ok := asUint256(*c.MinGasPrice)
		if !ok || price.Cmp(min) < 0 {
			return false
		}
	}
	if c.MaxGasPrice != nil {
		max, ok := asUint256(*c.MaxGasPrice)
		if !ok || price.Cmp(max) > 0 {
			return false
		}
	}
	if c.GasLimitThreshold != nil {
		gas, ok := asUint256(tx.Gas)
		if !ok {
			return false
		}
		threshold, ok := asUint256(*c.GasLimitThreshold)
		if !ok || gas.Cmp(threshold) < 0 {
			return false
		}
	}
	return true
}

func evalValueThreshold(tx txtypes.Transaction, c ValueThreshold) bool {
	v := FieldValue(tx, c.Field)
	s, ok := v.(string)
	if !ok {
		return false
	}
	n, ok := asUint256(s)
	if !ok {
		return false
	}
	if c.MinValue != nil {
		min, ok := asUint256(*c.MinValue)
		if !ok || n.Cmp(min) < 0 {
			return false
		}
	}
	if c.MaxValue != nil {
		max, ok := asUint256(*c.MaxValue)
		if !ok || n.Cmp(max) > 0 {
			return false
		}
	}
	return true
}

func evalTimeWindow(tx txtypes.Transaction, c TimeWindow) bool {
	ts := time.Unix(tx.Timestamp, 0).UTC()
	if c.StartTime != nil && ts.Before(*c.StartTime) {
		return false
	}
	if c.EndTime != nil && ts.After(*c.EndTime) {
		return false
	}
	if c.DurationSeconds != nil {
		if c.StartTime == nil {
			return false
		}
		end := c.StartTime.Add(time.Duration(*c.DurationSeconds) * time.Second)
		if ts.After(end) {
			return false
		}
	}
	return true
}

func evalChainFilter(tx txtypes.Transaction, c ChainFilter) bool {
	for _, id := range c.ChainIDs {
		if id == tx.ChainID {
			return true
		}
	}
	return false
}

func evalPatternMatch(tx txtypes.Transaction, c PatternMatch) bool {
	v := FieldValue(tx, c.Field)
	s, ok := v.(string)
	if !ok {
		return false
	}
	if !c.Regex {
		return strings.Contains(s, c.Pattern)
	}
	re, ok := compiledPattern(c.Pattern)
	if !ok {
		return false
	}
	return re.MatchString(s)
}
