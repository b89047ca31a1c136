package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scorpius-io/rule-engine/txtypes"
)

// Interpolate substitutes {{name}} placeholders in a title/description
// template (spec §4.4). Unknown placeholders are left verbatim; value_eth
// and gas_price_gwei fall back to the raw placeholder text when their
// source field doesn't parse as an unsigned 128-bit integer.
func Interpolate(template string, tx txtypes.Transaction) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		start := strings.Index(template[i:], "{{")
		if start == -1 {
			b.WriteString(template[i:])
			break
		}
		start += i
		end := strings.Index(template[start:], "}}")
		if end == -1 {
			b.WriteString(template[i:])
			break
		}
		end += start
		b.WriteString(template[i:start])
		name := strings.TrimSpace(template[start+2 : end])
		if resolved, ok := resolvePlaceholder(name, tx); ok {
			b.WriteString(resolved)
		} else {
			b.WriteString(template[start : end+2])
		}
		i = end + 2
	}
	return b.String()
}

func resolvePlaceholder(name string, tx txtypes.Transaction) (string, bool) {
	switch name {
	case "hash":
		return tx.Hash, true
	case "from":
		return tx.From, true
	case "to":
		return tx.To, true
	case "value":
		return tx.Value, true
	case "gas":
		return tx.Gas, true
	case "gas_price":
		return tx.GasPrice, true
	case "nonce":
		return tx.Nonce, true
	case "chain_id":
		return strconv.FormatInt(tx.ChainID, 10), true
	case "timestamp":
		return strconv.FormatInt(tx.Timestamp, 10), true
	case "status":
		return tx.Status, true
	case "value_eth":
		return scaledDecimal(tx.Value, 18, 6)
	case "gas_price_gwei":
		return scaledDecimal(tx.GasPrice, 9, 2)
	default:
		return "", false
	}
}

// scaledDecimal renders a u128-ish decimal string divided by 10^decimals,
// formatted with places fractional digits (e.g. wei -> ETH, wei -> gwei),
// rounding half-up on the dropped digit to match the original's
// format!("{:.N}"). Returns ok=false when field isn't an unsigned integer
// that fits in 128 bits, leaving the caller to keep the placeholder text untouched per
// spec §4.4.
func scaledDecimal(field string, decimals, places int) (string, bool) {
	n, ok := asUint256(field)
	if !ok || n.BitLen() > 128 {
		return "", false
	}
	s := n.Dec()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := s[len(s)-decimals:]
	if places >= len(fracPart) {
		fracPart += strings.Repeat("0", places-len(fracPart))
		return fmt.Sprintf("%s.%s", intPart, fracPart), true
	}

	kept := fracPart[:places]
	if fracPart[places] >= '5' {
		intPart, kept = incrementDecimal(intPart, kept)
	}
	return fmt.Sprintf("%s.%s", intPart, kept), true
}

// incrementDecimal adds 1 to the decimal digit string formed by intPart
// concatenated with fracPart, carrying into intPart when every kept
// fractional digit rounds over (0.995 rounded to 2 places carries to 1.00),
// and growing intPart by one digit when it is all nines as well (9.995
// carries to 10.00).
func incrementDecimal(intPart, fracPart string) (string, string) {
	digits := []byte(intPart + fracPart)
	for i := len(digits) - 1; i >= 0; i-- {
		if digits[i] < '9' {
			digits[i]++
			return string(digits[:len(intPart)]), string(digits[len(intPart):])
		}
		digits[i] = '0'
	}
	return "1" + string(digits[:len(intPart)]), string(digits[len(intPart):])
}
