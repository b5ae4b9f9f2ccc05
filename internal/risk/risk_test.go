package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/signal"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func withStop(symbol string, price, stop float64) signal.Signal {
	return signal.Signal{
		Symbol:     symbol,
		Type:       signal.Buy,
		Confidence: 0.9,
		Price:      dec(price),
		Targets:    &signal.Targets{Entry: dec(price), StopLoss: dec(stop), TakeProfit: dec(price * 1.1)},
	}
}

func TestValidateTrade_ExposureExceeded(t *testing.T) {
	m := NewManager(Config{MinBalance: 100, MaxExposure: 0.05}, nil)
	res := m.ValidateTrade(withStop("BTCUSDT", 100, 87.5), AccountInfo{Balance: dec(1000), Equity: dec(1000), PeakEquity: dec(1000)})

	assert.False(t, res.Passed)
	assert.True(t, res.HasError(CodeExposureExceeded))
	c, ok := res.Check(CheckExposure)
	require.True(t, ok)
	assert.InDelta(t, 0.08, c.Value, 1e-9)
	assert.False(t, c.Passed)
	assert.True(t, res.PositionSize.Equal(dec(0.8)))
	assert.Len(t, res.Checks, 5, "every check is recorded")
	assert.Len(t, res.Errors, 1)
}

func TestValidateTrade_PassesWithinLimits(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	res := m.ValidateTrade(withStop("BTCUSDT", 100, 80), AccountInfo{Balance: dec(1000)})
	assert.True(t, res.Passed, res.Errors)
	assert.InDelta(t, 0.05, res.Exposure, 1e-9)
}

func TestValidateTrade_ReportsAllFailures(t *testing.T) {
	book := NewBook()
	require.NoError(t, book.Reserve(signal.OpenPosition{Symbol: "BTCUSDT", Size: dec(5), EntryPrice: dec(100)}, 0))
	m := NewManager(DefaultConfig(), book)

	res := m.ValidateTrade(withStop("BTCUSDT", 100, 99.5), AccountInfo{
		Balance:    dec(50),
		Equity:     dec(50),
		PeakEquity: dec(100),
	})
	assert.False(t, res.Passed)
	for _, code := range []string{
		CodeInsufficientBalance,
		CodeExposureExceeded,
		CodeTotalExposureExceeded,
		CodeMaxDrawdownExceeded,
		CodeDuplicatePosition,
	} {
		assert.True(t, res.HasError(code), code)
	}
}

func TestValidateTrade_MissingStop(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	sig := signal.Signal{Symbol: "ETHUSDT", Type: signal.Sell, Price: dec(10)}
	res := m.ValidateTrade(sig, AccountInfo{Balance: dec(1000)})
	assert.False(t, res.Passed)
	assert.True(t, res.HasError(CodeInvalidStopLoss))
}

func TestClosePosition(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	require.NoError(t, m.Book().Reserve(signal.OpenPosition{Symbol: "ETHUSDT"}, 1))
	_, err := m.ClosePosition("ETHUSDT")
	require.NoError(t, err)
	_, err = m.ClosePosition("ETHUSDT")
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestBook_ReserveIsAtomicUnderContention(t *testing.T) {
	const capacity, racers = 3, 40
	book := NewBook()
	var admitted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if book.Reserve(signal.OpenPosition{Symbol: fmt.Sprintf("SYM%02d", i)}, capacity) == nil {
				admitted.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(capacity), admitted.Load())
	assert.Equal(t, capacity, book.Count())
}

func TestBook_Lifecycle(t *testing.T) {
	book := NewBook()
	require.NoError(t, book.Reserve(signal.OpenPosition{Symbol: "BTCUSDT", Size: dec(1), EntryPrice: dec(100)}, 2))
	assert.ErrorIs(t, book.Reserve(signal.OpenPosition{Symbol: "BTCUSDT"}, 2), ErrDuplicate)

	pos, _ := book.Get("BTCUSDT")
	assert.Equal(t, signal.PositionPending, pos.Status)

	pos, err := book.Confirm("BTCUSDT", "42", dec(2), dec(101))
	require.NoError(t, err)
	assert.Equal(t, signal.PositionOpen, pos.Status)
	assert.True(t, book.Notional().Equal(dec(202)))

	_, err = book.Confirm("ETHUSDT", "1", dec(1), dec(1))
	assert.ErrorIs(t, err, ErrNoPosition)

	require.NoError(t, book.Reserve(signal.OpenPosition{Symbol: "ETHUSDT"}, 2))
	assert.ErrorIs(t, book.Reserve(signal.OpenPosition{Symbol: "SOLUSDT"}, 2), ErrCapacity)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, book.Symbols())

	_, ok := book.Remove("BTCUSDT")
	assert.True(t, ok)
	assert.Len(t, book.List(), 1)
}
