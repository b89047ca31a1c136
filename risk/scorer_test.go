package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scorpius-io/rule-engine/txtypes"
)

type fieldOracle struct {
	suspicious map[string]bool
}

func (f fieldOracle) Suspicious(addr string) bool { return f.suspicious[addr] }

func baseTx(t *testing.T) txtypes.Transaction {
	t.Helper()
	tx, err := txtypes.Decode([]byte(`{
		"hash":"0x1","chain_id":1,"from":"0xaaaa","to":"0xbbbb",
		"value":"0","gas":"21000","gas_price":"1000000000",
		"data":"0x","nonce":"1","timestamp":1700000000,"status":"pending"
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return tx
}

func TestScore_ValueTiers(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  float64
	}{
		{"under 10 eth", "1000000000000000000", 0},     // 1 ETH
		{"over 10 eth", "20000000000000000000", 0.1},   // 20 ETH
		{"over 100 eth", "200000000000000000000", 0.3}, // 200 ETH
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := baseTx(t)
			tx.Value = tt.value
			assert.InDelta(t, tt.want, Score(tx, nil), 0.0001)
		})
	}
}

func TestScore_GasPriceTiers(t *testing.T) {
	tests := []struct {
		name     string
		gasPrice string
		want     float64
	}{
		{"low gas", "1000000000", 0},                // 1 gwei
		{"over 50 gwei", "60000000000", 0.1},         // 60 gwei
		{"over 100 gwei", "150000000000", 0.2},       // 150 gwei
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := baseTx(t)
			tx.GasPrice = tt.gasPrice
			assert.InDelta(t, tt.want, Score(tx, nil), 0.0001)
		})
	}
}

func TestScore_NonEmptyData(t *testing.T) {
	tx := baseTx(t)
	tx.Data = "0xdeadbeef"
	assert.InDelta(t, 0.1, Score(tx, nil), 0.0001)
}

func TestScore_SuspiciousAddressesCapAtOne(t *testing.T) {
	tx := baseTx(t)
	tx.Value = "200000000000000000000" // +0.3
	tx.GasPrice = "150000000000"       // +0.2
	tx.Data = "0xdeadbeef"              // +0.1
	oracle := fieldOracle{suspicious: map[string]bool{tx.From: true, tx.To: true}}
	assert.Equal(t, 1.0, Score(tx, oracle))
}

func TestScore_NilOracleDefaultsToNotSuspicious(t *testing.T) {
	tx := baseTx(t)
	assert.Equal(t, 0.0, Score(tx, nil))
}
