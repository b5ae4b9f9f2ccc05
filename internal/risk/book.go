package risk

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"teaka/internal/signal"
)

var (
	ErrCapacity   = errors.New("maximum positions reached")
	ErrDuplicate  = errors.New("position already open")
	ErrNoPosition = errors.New("no open position")
)

// Book 是跨 symbol 共享的持仓表；容量检查与插入在同一把锁内完成。
type Book struct {
	mu        sync.RWMutex
	positions map[string]signal.OpenPosition
}

func NewBook() *Book {
	return &Book{positions: make(map[string]signal.OpenPosition)}
}

// Reserve inserts a pending position if the book holds fewer than max
// positions and none for the symbol. max <= 0 means unlimited.
func (b *Book) Reserve(pos signal.OpenPosition, max int) error {
	sym := strings.TrimSpace(pos.Symbol)
	if sym == "" {
		return fmt.Errorf("reserve: empty symbol")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.positions[sym]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, sym)
	}
	if max > 0 && len(b.positions) >= max {
		return ErrCapacity
	}
	pos.Symbol = sym
	if pos.Status == "" {
		pos.Status = signal.PositionPending
	}
	if pos.Timestamp == 0 {
		pos.Timestamp = time.Now().UnixMilli()
	}
	b.positions[sym] = pos
	return nil
}

// Confirm marks a reserved position open with the broker's fill.
func (b *Book) Confirm(symbol, orderID string, size, price decimal.Decimal) (signal.OpenPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[symbol]
	if !ok {
		return signal.OpenPosition{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	pos.Status = signal.PositionOpen
	pos.OrderID = orderID
	if size.IsPositive() {
		pos.Size = size
	}
	if price.IsPositive() {
		pos.EntryPrice = price
	}
	b.positions[symbol] = pos
	return pos, nil
}

// Restore puts a position back verbatim, used when replaying the journal.
func (b *Book) Restore(pos signal.OpenPosition) {
	b.mu.Lock()
	b.positions[pos.Symbol] = pos
	b.mu.Unlock()
}

// Remove drops the symbol's position and returns it.
func (b *Book) Remove(symbol string) (signal.OpenPosition, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[symbol]
	if ok {
		delete(b.positions, symbol)
	}
	return pos, ok
}

func (b *Book) Get(symbol string) (signal.OpenPosition, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[symbol]
	return pos, ok
}

func (b *Book) Has(symbol string) bool {
	_, ok := b.Get(symbol)
	return ok
}

func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// Symbols returns open and pending symbols, sorted.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.positions))
	for sym := range b.positions {
		out = append(out, sym)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (b *Book) List() []signal.OpenPosition {
	b.mu.RLock()
	out := make([]signal.OpenPosition, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, pos)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Notional sums size × entry over every position.
func (b *Book) Notional() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := decimal.Zero
	for _, pos := range b.positions {
		total = total.Add(pos.Notional())
	}
	return total
}
