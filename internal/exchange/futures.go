package exchange

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"BreakoutSentinel/internal/calculator"
	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/retry"
)

// Options configures the futures adapter.
type Options struct {
	APIKey         string
	APISecret      string
	Testnet        bool
	Symbol         string
	QtyPrecision   int32
	PricePrecision int32
}

// Futures is the order and account provider for a single USDT-M perpetual symbol.
// Every call goes through the retry policy; non-transient API errors surface as
// *RejectionError.
type Futures struct {
	client         *futures.Client
	retry          *retry.Policy
	symbol         string
	qtyPrecision   int32
	pricePrecision int32
	newID          func() string
}

// NewFutures creates a provider. Testnet is a package-level switch in go-binance
// and must be set before the client is created.
func NewFutures(opts Options, policy *retry.Policy) *Futures {
	if opts.Testnet {
		futures.UseTestnet = true
		log.Println("[WARN] using Binance futures TESTNET")
	}
	client := binance.NewFuturesClient(opts.APIKey, opts.APISecret)
	return newWithClient(client, opts, policy)
}

func newWithClient(client *futures.Client, opts Options, policy *retry.Policy) *Futures {
	return &Futures{
		client:         client,
		retry:          policy.With(IsTransient),
		symbol:         opts.Symbol,
		qtyPrecision:   opts.QtyPrecision,
		pricePrecision: opts.PricePrecision,
		newID:          uuid.NewString,
	}
}

// Client exposes the underlying client for the market data fetcher.
func (f *Futures) Client() *futures.Client { return f.client }

// Symbol returns the traded instrument.
func (f *Futures) Symbol() string { return f.symbol }

// Setup checks connectivity and configures leverage and CROSSED margin.
func (f *Futures) Setup(ctx context.Context, leverage int) error {
	if err := f.do(ctx, "ping", func() error {
		return f.client.NewPingService().Do(ctx)
	}); err != nil {
		return err
	}
	log.Printf("[INFO] connected to Binance futures")

	if err := f.do(ctx, "set leverage", func() error {
		_, err := f.client.NewChangeLeverageService().Symbol(f.symbol).Leverage(leverage).Do(ctx)
		return err
	}); err != nil {
		return err
	}
	log.Printf("[INFO] leverage set to %dx for %s", leverage, f.symbol)

	err := f.do(ctx, "set margin type", func() error {
		return f.client.NewChangeMarginTypeService().Symbol(f.symbol).MarginType(futures.MarginTypeCrossed).Do(ctx)
	})
	switch {
	case err == nil:
		log.Printf("[INFO] margin type set to CROSSED")
	case apiCode(err) == codeNoNeedMarginType:
		log.Printf("[INFO] already using CROSSED margin")
	default:
		log.Printf("[WARN] margin type change: %v", err)
	}
	return nil
}

// SubmitMarketOrder sends a market order and returns the fill.
func (f *Futures) SubmitMarketOrder(ctx context.Context, side model.Side, qty float64) (*model.OrderResult, error) {
	id := f.newID()
	log.Printf("[INFO] sending %s market order: %s %s (client id %s)", side, calculator.Format(qty, f.qtyPrecision), f.symbol, id)
	return f.createOrder(ctx, "market order", id, func() *futures.CreateOrderService {
		return f.client.NewCreateOrderService().
			Symbol(f.symbol).
			Side(futures.SideType(side)).
			Type(futures.OrderTypeMarket).
			Quantity(calculator.Format(qty, f.qtyPrecision)).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	})
}

// SubmitStopOrder places a STOP_MARKET order triggered on mark price.
func (f *Futures) SubmitStopOrder(ctx context.Context, side model.Side, qty, stopPrice float64, reduceOnly bool) (*model.OrderResult, error) {
	return f.conditional(ctx, "stop order", futures.OrderTypeStopMarket, side, qty, stopPrice, reduceOnly)
}

// SubmitTakeProfitOrder places a TAKE_PROFIT_MARKET order triggered on mark price.
func (f *Futures) SubmitTakeProfitOrder(ctx context.Context, side model.Side, qty, triggerPrice float64, reduceOnly bool) (*model.OrderResult, error) {
	return f.conditional(ctx, "take-profit order", futures.OrderTypeTakeProfitMarket, side, qty, triggerPrice, reduceOnly)
}

func (f *Futures) conditional(ctx context.Context, op string, typ futures.OrderType, side model.Side, qty, trigger float64, reduceOnly bool) (*model.OrderResult, error) {
	id := f.newID()
	price := calculator.Format(trigger, f.pricePrecision)
	log.Printf("[INFO] placing %s %s %s @ %s (client id %s)", op, side, calculator.Format(qty, f.qtyPrecision), price, id)
	return f.createOrder(ctx, op, id, func() *futures.CreateOrderService {
		return f.client.NewCreateOrderService().
			Symbol(f.symbol).
			Side(futures.SideType(side)).
			Type(typ).
			Quantity(calculator.Format(qty, f.qtyPrecision)).
			StopPrice(price).
			ReduceOnly(reduceOnly).
			WorkingType(futures.WorkingTypeMarkPrice)
	})
}

// createOrder submits with a client order id that stays the same across
// retries. A duplicate-id rejection on a retry means an earlier attempt
// reached the exchange, so the existing order is looked up instead.
func (f *Futures) createOrder(ctx context.Context, op, clientID string, build func() *futures.CreateOrderService) (*model.OrderResult, error) {
	var res *model.OrderResult
	attempt := 0
	err := f.retry.Do(ctx, op, func() error {
		attempt++
		resp, err := build().NewClientOrderID(clientID).Do(ctx)
		if err == nil {
			res, err = fromCreateResponse(resp)
			return err
		}
		if attempt > 1 && apiCode(err) == codeDuplicateOrderID {
			log.Printf("[WARN] %s: client id %s already accepted, fetching existing order", op, clientID)
			order, qerr := f.client.NewGetOrderService().Symbol(f.symbol).OrigClientOrderID(clientID).Do(ctx)
			if qerr != nil {
				return qerr
			}
			res, err = fromOrder(order)
			return err
		}
		return err
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

// CancelAllOrders cancels every open order on the symbol.
func (f *Futures) CancelAllOrders(ctx context.Context) error {
	err := f.do(ctx, "cancel all orders", func() error {
		return f.client.NewCancelAllOpenOrdersService().Symbol(f.symbol).Do(ctx)
	})
	if err == nil {
		log.Printf("[INFO] cancelled all open orders on %s", f.symbol)
	}
	return err
}

// ListOpenPositions returns the non-zero positions on the symbol.
func (f *Futures) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	var risks []*futures.PositionRisk
	if err := f.do(ctx, "list positions", func() error {
		var err error
		risks, err = f.client.NewGetPositionRiskService().Symbol(f.symbol).Do(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	var out []model.Position
	for _, r := range risks {
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		out = append(out, model.Position{
			Symbol:        r.Symbol,
			Amount:        amt,
			EntryPrice:    parseFloat(r.EntryPrice),
			MarkPrice:     parseFloat(r.MarkPrice),
			UnrealizedPnL: parseFloat(r.UnRealizedProfit),
		})
	}
	return out, nil
}

// GetAccountSnapshot fetches a fresh wallet and margin snapshot.
func (f *Futures) GetAccountSnapshot(ctx context.Context) (*model.AccountSnapshot, error) {
	var acct *futures.Account
	if err := f.do(ctx, "get account", func() error {
		var err error
		acct, err = f.client.NewGetAccountService().Do(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	wallet := parseFloat(acct.TotalWalletBalance)
	margin := parseFloat(acct.TotalInitialMargin)
	return &model.AccountSnapshot{
		WalletBalance:    wallet,
		AvailableBalance: parseFloat(acct.AvailableBalance),
		TotalMargin:      margin,
		UnrealizedPnL:    parseFloat(acct.TotalUnrealizedProfit),
		MarginUsagePct:   model.MarginUsage(margin, wallet),
		FetchedAt:        time.Now().UTC(),
	}, nil
}

func (f *Futures) do(ctx context.Context, op string, fn func() error) error {
	return classify(op, f.retry.Do(ctx, op, fn))
}

func fromCreateResponse(r *futures.CreateOrderResponse) (*model.OrderResult, error) {
	if r == nil {
		return nil, fmt.Errorf("empty order response")
	}
	return &model.OrderResult{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Status:        string(r.Status),
		FilledQty:     parseFloat(r.ExecutedQuantity),
		AvgPrice:      parseFloat(r.AvgPrice),
	}, nil
}

func fromOrder(o *futures.Order) (*model.OrderResult, error) {
	if o == nil {
		return nil, fmt.Errorf("empty order")
	}
	return &model.OrderResult{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Status:        string(o.Status),
		FilledQty:     parseFloat(o.ExecutedQuantity),
		AvgPrice:      parseFloat(o.AvgPrice),
	}, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}
