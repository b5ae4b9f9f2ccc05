package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaka/internal/broker"
	"teaka/internal/pipeline"
	"teaka/internal/signal"
)

func TestTelegram_SendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	require.NoError(t, tg.SendText(context.Background(), "hello"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
}

func TestTelegram_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	tg.Backoff = time.Millisecond
	require.NoError(t, tg.SendText(context.Background(), "hi"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestTelegram_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	tg.Backoff = time.Millisecond
	require.Error(t, tg.SendText(context.Background(), "hi"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTelegram_IncompleteConfig(t *testing.T) {
	assert.Error(t, NewTelegram("", "1").SendText(context.Background(), "x"))
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingNotifier) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func sampleResult() pipeline.ExecutionResult {
	return pipeline.ExecutionResult{
		ExecutionID: "exec-1",
		Symbol:      "BTC/USDT",
		Signal: signal.Signal{
			Symbol:     "BTC/USDT",
			Type:       signal.Sell,
			Confidence: 0.81,
			Strategy:   "consensus",
			Metadata:   map[string]float64{"votes.sell": 1.5, "votes.buy": 0.4},
			Targets: &signal.Targets{
				Entry:           decimal.NewFromInt(100),
				StopLoss:        decimal.NewFromInt(102),
				TakeProfit:      decimal.NewFromInt(96),
				RiskRewardRatio: 2,
			},
		},
		Fill: broker.Fill{
			OrderID: "paper-1",
			Symbol:  "BTC/USDT",
			Units:   decimal.NewFromFloat(0.5),
			Price:   decimal.NewFromInt(100),
			Venue:   "paper",
		},
		Notional:  decimal.NewFromInt(50),
		Timestamp: 1700000000000,
	}
}

func TestFormatExecution(t *testing.T) {
	text := FormatExecution(sampleResult()).Markdown()
	assert.True(t, strings.HasPrefix(text, "🔴 SELL BTC/USDT"))
	assert.Regexp(t, `Order: +paper-1`, text)
	assert.Regexp(t, `Stop: +102`, text)
	assert.Regexp(t, `Votes: +buy=0.40 sell=1.50`, text)
	assert.Contains(t, text, "ID exec-1")
}

func TestMessage_Markdown(t *testing.T) {
	msg := Message{
		Title: "note",
		Sections: []Section{
			{Title: "A", Fields: []Field{{"k", "v"}, {"longer", "w"}, {"empty", " "}}},
			{Title: "B", Fields: []Field{{"x", ""}}},
		},
		Footer: "see ```code```",
	}
	want := "note\n\n```\n[A]\nk:      v\nlonger: w\n```\n\nsee '''code'''"
	assert.Equal(t, want, msg.Markdown())
}

func TestForwarder_SendsEachResultAndSurvivesErrors(t *testing.T) {
	rec := &recordingNotifier{err: assert.AnError}
	ch := make(chan pipeline.ExecutionResult, 2)
	ch <- sampleResult()
	ch <- sampleResult()
	close(ch)

	err := NewForwarder(rec, time.Second).Run(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count())
}

func TestForwarder_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewForwarder(&recordingNotifier{}, 0).Run(ctx, make(chan pipeline.ExecutionResult))
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop")
	}
}
