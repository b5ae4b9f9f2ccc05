package consensus

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/signal"
	"teaka/internal/strategy"
)

type scripted struct {
	name  string
	queue []*signal.Signal
	panic bool
	calls int
}

func (s *scripted) Name() string { return s.name }
func (s *scripted) Kind() strategy.Kind { return strategy.KindBreakout }
func (s *scripted) Warmup(signal.PriceTick) {}
func (s *scripted) WindowLen(string) int { return 0 }
func (s *scripted) Analyze(t signal.PriceTick) *signal.Signal {
	s.calls++
	if s.panic {
		panic("boom")
	}
	if len(s.queue) == 0 {
		return nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next
}

func sig(name string, typ signal.Type, conf, sharpe, winRate float64, price float64) *signal.Signal {
	return &signal.Signal{
		Symbol:      "BTCUSDT",
		Type:        typ,
		Confidence:  conf,
		Price:       decimal.NewFromFloat(price),
		Strategy:    name,
		Metadata:    map[string]float64{signal.MetaZScore: conf * 3},
		Targets:     &signal.Targets{Entry: decimal.NewFromFloat(price), StopLoss: decimal.NewFromFloat(price - 1)},
		Performance: &signal.Performance{Sharpe: sharpe, WinRate: winRate},
	}
}

func tick(ts int64) signal.PriceTick {
	return signal.PriceTick{Symbol: "BTCUSDT", Price: decimal.NewFromInt(100), Timestamp: ts}
}

func TestVote_WeightedWinnerAndMetadata(t *testing.T) {
	signals := []signal.Signal{
		*sig("mr", signal.Buy, 0.9, 0.5, 0.6, 100),
		*sig("tf", signal.Buy, 0.8, 1.0, 0.5, 102),
		*sig("bo", signal.Sell, 0.2, 0, 0, 101),
	}
	out := Vote(signals, 0.7)
	require.NotNil(t, out)
	assert.Equal(t, signal.Buy, out.Type)
	assert.Equal(t, StrategyName, out.Strategy)

	wBuy := 0.9*1.5*1.6 + 0.8*2*1.5
	wSell := 0.2
	assert.InDelta(t, wBuy/(wBuy+wSell), out.Confidence, 1e-9)
	assert.InDelta(t, wBuy, out.Meta("votes.buy"), 1e-9)
	assert.Equal(t, 1.0, out.Meta("strategy.mr"))
	assert.Equal(t, 3.0, out.Meta("signals"))
	assert.InDelta(t, 2.7, out.Meta(signal.MetaZScore), 1e-9)

	// targets come from the best Sharpe contributor in the winning bucket
	require.NotNil(t, out.Targets)
	assert.True(t, out.Targets.Entry.Equal(decimal.NewFromInt(102)))
	assert.Equal(t, 1.0, out.Performance.Sharpe)

	wantPrice := (0.9*1.5*1.6*100 + 0.8*2*1.5*102) / wBuy
	assert.InDelta(t, wantPrice, out.Price.InexactFloat64(), 1e-6)
}

func TestVote_RejectsBelowThreshold(t *testing.T) {
	signals := []signal.Signal{
		*sig("mr", signal.Buy, 0.6, 0, 0, 100),
		*sig("bo", signal.Sell, 0.5, 0, 0, 100),
	}
	assert.Nil(t, Vote(signals, 0.7))
	assert.Nil(t, Vote(nil, 0.7))
}

func TestVote_TieBreaksDeterministically(t *testing.T) {
	signals := []signal.Signal{
		*sig("a", signal.Sell, 0.5, 0, 0, 100),
		*sig("b", signal.Buy, 0.5, 0, 0, 100),
	}
	out := Vote(signals, 0)
	require.NotNil(t, out)
	assert.Equal(t, signal.Buy, out.Type)
	assert.Equal(t, 0.5, out.Confidence)

	same := []signal.Signal{
		*sig("first", signal.Buy, 0.5, 1, 0, 100),
		*sig("second", signal.Buy, 0.5, 1, 0, 105),
	}
	out = Vote(same, 0.7)
	require.NotNil(t, out)
	assert.True(t, out.Targets.Entry.Equal(decimal.NewFromInt(100)))
}

func TestVote_ConfidenceAlwaysInUnitRange(t *testing.T) {
	extremes := []signal.Signal{
		*sig("a", signal.Buy, 1, 50, 1, 100),
		*sig("b", signal.Sell, 1, -10, 0, 100),
		*sig("c", signal.Buy, 0, 0, 0, 100),
	}
	out := Vote(extremes, 0)
	require.NotNil(t, out)
	assert.GreaterOrEqual(t, out.Confidence, 0.0)
	assert.LessOrEqual(t, out.Confidence, 1.0)
	assert.Zero(t, Weight(extremes[1]), "negative weights are clamped")
}

func TestAggregator_OneConsensusPerWindow(t *testing.T) {
	ev := &scripted{name: "mr"}
	for i := 0; i < 12; i++ {
		ev.queue = append(ev.queue, sig("mr", signal.Buy, 0.9, 0, 0, 100))
	}
	agg := NewAggregator(Config{WindowSize: 3}, ev)

	var emitted []int
	for i := 0; i < 12; i++ {
		if out := agg.Analyze(tick(int64(i))); out != nil {
			emitted = append(emitted, i)
			assert.Equal(t, int64(i), out.Timestamp)
		}
	}
	assert.Equal(t, []int{0, 3, 6, 9}, emitted)
}

func TestAggregator_IsolatesPanickingEvaluator(t *testing.T) {
	bad := &scripted{name: "bad", panic: true}
	good := &scripted{name: "good", queue: []*signal.Signal{sig("good", signal.Sell, 0.95, 0, 0, 100)}}
	agg := NewAggregator(Config{}, bad, good)

	out := agg.Analyze(tick(1))
	require.NotNil(t, out)
	assert.Equal(t, signal.Sell, out.Type)
	assert.Equal(t, 1, bad.calls)
}

func TestAggregator_WindowIsPerSymbol(t *testing.T) {
	ev := &scripted{name: "mr", queue: []*signal.Signal{sig("mr", signal.Buy, 0.9, 0, 0, 100)}}
	agg := NewAggregator(Config{WindowSize: 2}, ev)
	require.NotNil(t, agg.Analyze(tick(1)))

	eth := signal.PriceTick{Symbol: "ETHUSDT", Price: decimal.NewFromInt(10), Timestamp: 1}
	assert.Nil(t, agg.Analyze(eth), "no ETH signals in the ETH window")
}
