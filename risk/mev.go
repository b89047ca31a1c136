package risk

import (
	"strings"

	"github.com/holiman/uint256"

	"github.com/scorpius-io/rule-engine/config"
	"github.com/scorpius-io/rule-engine/txtypes"
)

// PatternKind is a closed set; SandwichAttack and Arbitrage are reserved
// and never produced in this revision (spec §4.6).
type PatternKind string

const (
	PatternHighGasPrice   PatternKind = "HighGasPrice"
	PatternDEXInteraction PatternKind = "DEXInteraction"
	PatternComplexCall    PatternKind = "ComplexContractCall"
	PatternSandwichAttack PatternKind = "SandwichAttack"
	PatternArbitrage      PatternKind = "Arbitrage"
)

// Pattern is one tagged MEV observation.
type Pattern struct {
	Kind    PatternKind    `json:"kind"`
	Details map[string]any `json:"details,omitempty"`
}

// DetectMEV evaluates the fixed pattern set against tx using cfg's
// thresholds and DEX router allowlist (spec §4.6; router list made
// configurable per SPEC_FULL §C.6 instead of the teacher's compiled-in
// literal).
func DetectMEV(tx txtypes.Transaction, cfg config.MEVConfig) []Pattern {
	var patterns []Pattern

	if price, err := uint256.FromDecimal(tx.GasPrice); err == nil {
		thresholdWei := gweiToWei(cfg.HighGasPriceGwei)
		if price.Cmp(thresholdWei) > 0 {
			patterns = append(patterns, Pattern{
				Kind: PatternHighGasPrice,
				Details: map[string]any{
					"gas_price":      tx.GasPrice,
					"threshold_gwei": cfg.HighGasPriceGwei,
				},
			})
		}
	}

	for _, router := range cfg.DEXRouters {
		if strings.EqualFold(tx.To, router) {
			patterns = append(patterns, Pattern{
				Kind:    PatternDEXInteraction,
				Details: map[string]any{"router": strings.ToLower(router)},
			})
			break
		}
	}

	if len(tx.Data) > cfg.ComplexCallDataBytes {
		patterns = append(patterns, Pattern{
			Kind: PatternComplexCall,
			Details: map[string]any{
				"data_length": len(tx.Data),
				"threshold":   cfg.ComplexCallDataBytes,
			},
		})
	}

	return patterns
}

// gweiToWei converts a gwei float threshold (as configured in YAML) to a
// wei-denominated uint256 for comparison against the transaction's
// integer gas_price string.
func gweiToWei(gwei float64) *uint256.Int {
	wei := uint256.NewInt(uint64(gwei * 1e9))
	return wei
}
