package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"teaka/internal/logger"
	"teaka/internal/pkg/jsonutil"
	"teaka/internal/pkg/symbol"
	"teaka/internal/pkg/text"
	"teaka/internal/risk"
)

// MT5 bridge request constants.
const (
	MT5Deviation = 10
	MT5Magic     = 202504
	mt5Comment   = "Teaka AutoExec"
)

type MT5Config struct {
	Python string   `toml:"python"` // interpreter, default "python3"
	Script string   `toml:"script"` // bridge script path
	Args   []string `toml:"args"`   // extra interpreter args
	Suffix string   `toml:"suffix"` // broker symbol suffix
}

// MT5Executor drives a MetaTrader5 bridge process: one JSON request on
// stdin, one JSON response on stdout.
type MT5Executor struct {
	cfg  MT5Config
	conv symbol.Converter
	run  func(ctx context.Context, stdin []byte, args ...string) ([]byte, error)
}

func NewMT5Executor(cfg MT5Config) *MT5Executor {
	if strings.TrimSpace(cfg.Python) == "" {
		cfg.Python = "python3"
	}
	m := &MT5Executor{cfg: cfg, conv: symbol.MT5(cfg.Suffix)}
	m.run = m.runProcess
	return m
}

func (m *MT5Executor) Name() string { return "mt5" }

type mt5Request struct {
	Symbol    string  `json:"symbol"`
	Volume    float64 `json:"volume"`
	Action    string  `json:"action"`
	TP        float64 `json:"tp"`
	SL        float64 `json:"sl"`
	Deviation int     `json:"deviation"`
	Magic     int     `json:"magic"`
	Comment   string  `json:"comment"`
}

func (m *MT5Executor) Execute(ctx context.Context, order Order) (*Fill, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if !order.StopLoss.IsPositive() || !order.TakeProfit.IsPositive() {
		return nil, &Error{Code: CodeValidation, Message: "MT5 orders require tp and sl"}
	}
	comment := order.Comment
	if comment == "" {
		comment = mt5Comment
	}
	req := mt5Request{
		Symbol:    m.conv.ToExchange(order.Symbol),
		Volume:    order.Size.InexactFloat64(),
		Action:    string(order.Action),
		TP:        order.TakeProfit.InexactFloat64(),
		SL:        order.StopLoss.InexactFloat64(),
		Deviation: MT5Deviation,
		Magic:     MT5Magic,
		Comment:   comment,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Code: CodeInvalidJSON, Message: err.Error()}
	}
	out, runErr := m.run(ctx, payload)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	fill, parseErr := parseMT5Response(out)
	if parseErr != nil {
		if runErr != nil && len(bytes.TrimSpace(out)) == 0 {
			return nil, &Error{Code: CodeConnection, Message: runErr.Error()}
		}
		return nil, parseErr
	}
	fill.Symbol = order.Symbol
	fill.Venue = m.Name()
	return fill, nil
}

// CheckConnection runs the bridge with --check-connection and returns account state.
func (m *MT5Executor) CheckConnection(ctx context.Context) (risk.AccountInfo, error) {
	out, err := m.run(ctx, nil, "--check-connection")
	obj, ok := jsonutil.LastObject(out)
	if !ok {
		if err == nil {
			err = errors.New("empty response")
		}
		return risk.AccountInfo{}, &Error{Code: CodeConnection, Message: err.Error()}
	}
	res := gjson.ParseBytes(obj)
	if !res.Get("success").Bool() {
		return risk.AccountInfo{}, responseError(res, CodeConnection)
	}
	acct := res.Get("account_info")
	balance := decimal.NewFromFloat(acct.Get("balance").Float())
	equity := decimal.NewFromFloat(acct.Get("equity").Float())
	logger.Infof("mt5: connected login=%s server=%s balance=%s", acct.Get("login").String(), acct.Get("server").String(), balance)
	return risk.AccountInfo{Balance: balance, Equity: equity, PeakEquity: decimal.Max(balance, equity)}, nil
}

// Account implements AccountProvider via the connection check.
func (m *MT5Executor) Account(ctx context.Context) (risk.AccountInfo, error) {
	return m.CheckConnection(ctx)
}

func parseMT5Response(out []byte) (*Fill, error) {
	obj, ok := jsonutil.LastObject(out)
	if !ok || !gjson.ValidBytes(obj) {
		return nil, &Error{Code: CodeInvalidJSON, Message: fmt.Sprintf("unparseable bridge output: %q", text.Truncate(string(bytes.TrimSpace(out)), 200))}
	}
	res := gjson.ParseBytes(obj)
	if !res.Get("success").Bool() {
		return nil, responseError(res, CodeExecution)
	}
	order := res.Get("order")
	return &Fill{
		OrderID: order.Get("ticket").String(),
		Units:   decimal.NewFromFloat(order.Get("volume").Float()),
		Price:   decimal.NewFromFloat(order.Get("price").Float()),
		Comment: order.Get("comment").String(),
	}, nil
}

func responseError(res gjson.Result, fallback string) *Error {
	code := res.Get("error.type").String()
	if code == "" {
		code = fallback
	}
	msg := res.Get("error.message").String()
	if msg == "" {
		msg = "bridge reported failure"
	}
	if c := res.Get("error.code"); c.Exists() {
		msg = fmt.Sprintf("%s (%s)", msg, c.Raw)
	}
	return &Error{Code: code, Message: msg}
}

func (m *MT5Executor) runProcess(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	if strings.TrimSpace(m.cfg.Script) == "" {
		return nil, errors.New("mt5 bridge script not configured")
	}
	argv := append(append([]string{}, m.cfg.Args...), m.cfg.Script)
	argv = append(argv, args...)
	cmd := exec.CommandContext(ctx, m.cfg.Python, argv...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil && stderr.Len() > 0 {
		err = fmt.Errorf("%w: %s", err, text.Truncate(strings.TrimSpace(stderr.String()), 300))
	}
	return stdout.Bytes(), err
}
