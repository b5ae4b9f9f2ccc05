package correlation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_SymmetricLookup(t *testing.T) {
	m, err := NewMatrix(map[string]map[string]float64{"btcusdt": {"ETHUSDT": 0.85, "SOLUSDT": -0.6}})
	require.NoError(t, err)
	assert.Equal(t, 0.85, m.Get("ETHUSDT", "BTCUSDT"))
	assert.Equal(t, 1.0, m.Get("XRPUSDT", "xrpusdt"))
	assert.Zero(t, m.Get("ETHUSDT", "SOLUSDT"))

	v, with := m.Strongest("BTCUSDT", []string{"SOLUSDT", "ETHUSDT", "BTCUSDT"})
	assert.Equal(t, 0.85, v)
	assert.Equal(t, "ETHUSDT", with)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}, m.Symbols())
}

func TestMatrix_VenueSpellingsShareRows(t *testing.T) {
	m, err := NewMatrix(map[string]map[string]float64{
		"BTCUSDT": {"ETH_USDT": 0.85},
		"us30":    {"NAS100": 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.85, m.Get("ETH/USDT", "BTC/USDT"))
	assert.Equal(t, 0.85, m.Get("btc/usdt", "ETHUSDT"))
	assert.Equal(t, 0.9, m.Get("NAS100", "US30"))
	assert.Contains(t, m.Raw(), "BTC/USDT")
}

func TestMatrix_RejectsOutOfRange(t *testing.T) {
	_, err := NewMatrix(map[string]map[string]float64{"A": {"B": 1.5}})
	assert.Error(t, err)
}

func TestProvider_ReplacesWholesale(t *testing.T) {
	p := NewProvider(nil)
	assert.Zero(t, p.Matrix().Get("A", "B"))

	first, _ := NewMatrix(map[string]map[string]float64{"A": {"B": 0.5}})
	p.Update(first)
	held := p.Matrix()

	second, _ := NewMatrix(map[string]map[string]float64{"C": {"D": 0.9}})
	p.Update(second)
	assert.Equal(t, 0.5, held.Get("A", "B"), "old snapshot is untouched")
	assert.Zero(t, p.Matrix().Get("A", "B"))
	assert.Equal(t, 0.9, p.Matrix().Get("D", "C"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("correlations:\n  BTCUSDT:\n    ETHUSDT: 0.85\n"), 0o644))
	m, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.85, m.Get("ETHUSDT", "BTCUSDT"))
	assert.Equal(t, 0.85, m.Get("ETH/USDT", "BTC/USDT"))

	p := NewProvider(nil)
	require.NoError(t, Watch(path, p, nil))
	assert.Equal(t, 0.85, p.Matrix().Get("BTCUSDT", "ETHUSDT"))
}
