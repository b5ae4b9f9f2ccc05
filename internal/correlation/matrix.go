// Package correlation holds the externally supplied symbol correlation
// matrix. Snapshots are immutable and replaced wholesale.
package correlation

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"teaka/internal/pkg/symbol"
)

// Matrix is symmetric; Set stores both directions.
type Matrix struct {
	values map[string]map[string]float64
}

// NewMatrix builds a matrix from a nested map. Values must lie in [-1,1].
func NewMatrix(raw map[string]map[string]float64) (*Matrix, error) {
	m := &Matrix{values: make(map[string]map[string]float64)}
	for a, row := range raw {
		for b, v := range row {
			if err := m.set(a, b, v); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// norm keys the matrix the way the pipeline keys symbols, so BTCUSDT and
// btc/usdt land on the same row.
func norm(sym string) string {
	return symbol.Canonical(sym)
}

func (m *Matrix) set(a, b string, v float64) error {
	a, b = norm(a), norm(b)
	if a == "" || b == "" {
		return fmt.Errorf("correlation: empty symbol")
	}
	if math.IsNaN(v) || v < -1 || v > 1 {
		return fmt.Errorf("correlation %s/%s out of range: %v", a, b, v)
	}
	if m.values[a] == nil {
		m.values[a] = make(map[string]float64)
	}
	if m.values[b] == nil {
		m.values[b] = make(map[string]float64)
	}
	m.values[a][b] = v
	m.values[b][a] = v
	return nil
}

// Get returns the correlation of a and b; a symbol is fully correlated
// with itself and unknown pairs are zero.
func (m *Matrix) Get(a, b string) float64 {
	a, b = norm(a), norm(b)
	if a == b {
		return 1
	}
	if m == nil {
		return 0
	}
	return m.values[a][b]
}

// Strongest returns the correlation with the largest magnitude between
// sym and any of others, with the symbol it was found against.
func (m *Matrix) Strongest(sym string, others []string) (float64, string) {
	var best float64
	var with string
	for _, o := range others {
		if norm(o) == norm(sym) {
			continue
		}
		if v := m.Get(sym, o); math.Abs(v) > math.Abs(best) {
			best, with = v, o
		}
	}
	return best, with
}

// Raw returns a deep copy suitable for serialisation.
func (m *Matrix) Raw() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	if m == nil {
		return out
	}
	for a, row := range m.values {
		cp := make(map[string]float64, len(row))
		for b, v := range row {
			cp[b] = v
		}
		out[a] = cp
	}
	return out
}

func (m *Matrix) Symbols() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.values))
	for s := range m.values {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Provider publishes the current matrix.
type Provider struct {
	current atomic.Pointer[Matrix]
}

func NewProvider(initial *Matrix) *Provider {
	p := &Provider{}
	if initial == nil {
		initial = &Matrix{values: map[string]map[string]float64{}}
	}
	p.current.Store(initial)
	return p
}

func (p *Provider) Matrix() *Matrix { return p.current.Load() }

// Update swaps in a new matrix.
func (p *Provider) Update(m *Matrix) {
	if m == nil {
		m = &Matrix{values: map[string]map[string]float64{}}
	}
	p.current.Store(m)
}
