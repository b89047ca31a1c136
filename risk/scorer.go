// Package risk implements the heuristic risk scorer and MEV pattern
// detector (C6), both pure functions over a transaction and static
// configuration (spec §4.6).
package risk

import (
	"strings"

	"github.com/holiman/uint256"

	"github.com/scorpius-io/rule-engine/txtypes"
)

var (
	weiPerETH = mustUint256("100000000000000000000") // 100 ETH in wei
	tenETHWei = mustUint256("10000000000000000000")  // 10 ETH in wei
	gwei100   = mustUint256("100000000000")           // 100 gwei in wei
	gwei50    = mustUint256("50000000000")            // 50 gwei in wei
)

func mustUint256(s string) *uint256.Int {
	n, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return n
}

// AddressOracle reports whether an address is suspicious. The default
// implementation always returns false (spec §4.6: "Suspicion is an
// external oracle"); MemoizedOracle in watchlist.go backs it with a
// watchlist store.
type AddressOracle interface {
	Suspicious(address string) bool
}

// NoopOracle is AddressOracle's default implementation.
type NoopOracle struct{}

func (NoopOracle) Suspicious(string) bool { return false }

// Score computes a risk score in [0.0, 1.0] for tx (spec §4.6).
func Score(tx txtypes.Transaction, oracle AddressOracle) float64 {
	var total float64

	if value, err := uint256.FromDecimal(tx.Value); err == nil {
		switch {
		case value.Cmp(weiPerETH) > 0:
			total += 0.3
		case value.Cmp(tenETHWei) > 0:
			total += 0.1
		}
	}

	if price, err := uint256.FromDecimal(tx.GasPrice); err == nil {
		switch {
		case price.Cmp(gwei100) > 0:
			total += 0.2
		case price.Cmp(gwei50) > 0:
			total += 0.1
		}
	}

	if !isZeroAddressData(tx.Data) {
		total += 0.1
	}

	if oracle == nil {
		oracle = NoopOracle{}
	}
	if oracle.Suspicious(tx.From) {
		total += 0.4
	}
	if oracle.Suspicious(tx.To) {
		total += 0.4
	}

	if total > 1.0 {
		return 1.0
	}
	return total
}

// isZeroAddressData reports whether data is empty or the bare "0x" the
// original treats as "no calldata" (used by Score's non-empty-data check).
func isZeroAddressData(data string) bool {
	return data == "" || strings.EqualFold(data, "0x")
}
