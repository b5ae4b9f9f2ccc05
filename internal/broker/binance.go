package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"teaka/internal/pkg/symbol"
	"teaka/internal/risk"
	"teaka/internal/signal"
)

type BinanceConfig struct {
	APIKey      string        `toml:"api_key"`
	SecretKey   string        `toml:"secret_key"`
	RESTBaseURL string        `toml:"rest_base_url"`
	HTTPTimeout time.Duration `toml:"http_timeout"`
	// QuantityPrecision truncates order units before submission.
	QuantityPrecision int32 `toml:"quantity_precision"`
}

// BinanceExecutor places USDⓈ-M futures market orders.
type BinanceExecutor struct {
	cfg    BinanceConfig
	client *futures.Client
}

func NewBinanceExecutor(cfg BinanceConfig) *BinanceExecutor {
	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.QuantityPrecision <= 0 {
		cfg.QuantityPrecision = 3
	}
	client.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	return &BinanceExecutor{cfg: cfg, client: client}
}

func (b *BinanceExecutor) Name() string { return "binance" }

func (b *BinanceExecutor) Execute(ctx context.Context, order Order) (*Fill, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	qty := order.Size.Truncate(b.cfg.QuantityPrecision)
	if !qty.IsPositive() {
		return nil, &Error{Code: CodeValidation, Message: fmt.Sprintf("size %s below venue precision", order.Size)}
	}
	side := futures.SideTypeBuy
	if order.Action == signal.Sell {
		side = futures.SideTypeSell
	}
	svc := b.client.NewCreateOrderService().
		Symbol(symbol.Binance.ToExchange(order.Symbol)).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if order.ID != "" {
		svc = svc.NewClientOrderID(order.ID)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, binanceError(err)
	}
	price, _ := decimal.NewFromString(resp.AvgPrice)
	if !price.IsPositive() {
		price = order.Price
	}
	units, _ := decimal.NewFromString(resp.ExecutedQuantity)
	if !units.IsPositive() {
		units = qty
	}
	return &Fill{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Symbol:  order.Symbol,
		Units:   units,
		Price:   price,
		Comment: order.Comment,
		Venue:   b.Name(),
	}, nil
}

func (b *BinanceExecutor) Account(ctx context.Context) (risk.AccountInfo, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return risk.AccountInfo{}, binanceError(err)
	}
	balance, _ := decimal.NewFromString(acct.TotalWalletBalance)
	equity, _ := decimal.NewFromString(acct.TotalMarginBalance)
	return risk.AccountInfo{Balance: balance, Equity: equity, PeakEquity: decimal.Max(balance, equity)}, nil
}

func binanceError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		code := CodeExecution
		// -1100..-1199 are request parameter errors
		if apiErr.Code <= -1100 && apiErr.Code > -1200 {
			code = CodeValidation
		}
		return &Error{Code: code, Message: fmt.Sprintf("%s (%d)", apiErr.Message, apiErr.Code)}
	}
	return &Error{Code: CodeConnection, Message: err.Error()}
}
