package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperBroker simulates an account in memory. Orders fill instantly at the
// last set price; nothing touches an exchange. Used for dry runs and for the
// engine tests.
type PaperBroker struct {
	mu        sync.Mutex
	balance   float64
	quotes    map[string]Quote // keyed by symbol
	positions map[string]*Position
	holdings  map[string]*Holding
	openBuys  map[string]bool
	openSells map[string]bool

	// RejectNext, when non-empty, causes the next PlaceOrder to come back
	// rejected with this reason.
	RejectNext string
}

func NewPaperBroker(balance float64) *PaperBroker {
	return &PaperBroker{
		balance:   balance,
		quotes:    make(map[string]Quote),
		positions: make(map[string]*Position),
		holdings:  make(map[string]*Holding),
		openBuys:  make(map[string]bool),
		openSells: make(map[string]bool),
	}
}

func (p *PaperBroker) Name() string { return "paper" }

// SetQuote sets the simulated intraday snapshot for a symbol.
func (p *PaperBroker) SetQuote(symbol string, lastPrice, dayHigh float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = Quote{
		Symbol:    symbol,
		LastPrice: lastPrice,
		DayHigh:   dayHigh,
		FetchedAt: time.Now(),
	}
}

// SetOpenOrder seeds a resting order, as if one had been placed but not
// yet filled.
func (p *PaperBroker) SetOpenOrder(symbol string, side Side) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if side == SideSell {
		p.openSells[symbol] = true
		return
	}
	p.openBuys[symbol] = true
}

// SetHolding seeds a settled holding, as if carried over from a prior day.
func (p *PaperBroker) SetHolding(symbol string, qty, usedQty int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdings[symbol] = &Holding{Symbol: symbol, Quantity: qty, UsedQuantity: usedQty}
}

func (p *PaperBroker) Positions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *PaperBroker) Holdings(ctx context.Context) ([]Holding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, *h)
	}
	return out, nil
}

func (p *PaperBroker) OpenOrderSymbols(ctx context.Context, side Side) (map[string]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	src := p.openBuys
	if side == SideSell {
		src = p.openSells
	}
	out := make(map[string]bool, len(src))
	for sym := range src {
		out[sym] = true
	}
	return out, nil
}

func (p *PaperBroker) AvailableBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Quantity <= 0 {
		return nil, Permanent("paper place order", errors.New("quantity must be > 0"))
	}
	if p.RejectNext != "" {
		reason := p.RejectNext
		p.RejectNext = ""
		return &OrderResult{OrderID: uuid.New().String(), Accepted: false, RejectionReason: reason}, nil
	}
	q, ok := p.quotes[req.Symbol]
	if !ok {
		return nil, Transient("paper place order", fmt.Errorf("no quote for %s", req.Symbol))
	}

	switch req.Side {
	case SideBuy:
		cost := q.LastPrice * float64(req.Quantity)
		if cost > p.balance {
			return &OrderResult{
				OrderID:         uuid.New().String(),
				Accepted:        false,
				RejectionReason: "insufficient funds",
			}, nil
		}
		p.balance -= cost
		if pos, ok := p.positions[req.Symbol]; ok {
			pos.CostBasis = (pos.CostBasis*float64(pos.Quantity) + cost) / float64(pos.Quantity+req.Quantity)
			pos.Quantity += req.Quantity
		} else {
			p.positions[req.Symbol] = &Position{
				Symbol:        req.Symbol,
				InstrumentKey: req.InstrumentKey,
				Quantity:      req.Quantity,
				CostBasis:     q.LastPrice,
			}
		}
	case SideSell:
		pos, ok := p.positions[req.Symbol]
		if !ok || pos.Quantity < req.Quantity {
			return &OrderResult{
				OrderID:         uuid.New().String(),
				Accepted:        false,
				RejectionReason: "insufficient quantity",
			}, nil
		}
		p.balance += q.LastPrice * float64(req.Quantity)
		pos.Quantity -= req.Quantity
		pos.SellPrice = q.LastPrice
		if pos.Quantity == 0 {
			delete(p.positions, req.Symbol)
		}
	default:
		return nil, Permanent("paper place order", fmt.Errorf("unknown side %q", req.Side))
	}

	return &OrderResult{OrderID: uuid.New().String(), Accepted: true}, nil
}

// OHLC implements QuoteProvider from the seeded quotes. Symbols without a
// seeded quote are simply absent from the result.
func (p *PaperBroker) OHLC(ctx context.Context, instruments []Instrument) (map[string]Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Quote, len(instruments))
	for _, inst := range instruments {
		if q, ok := p.quotes[inst.Symbol]; ok {
			out[inst.Symbol] = q
		}
	}
	return out, nil
}

// HistoricalClose is not supported in paper mode; previous closes come from
// a seeded store in tests.
func (p *PaperBroker) HistoricalClose(ctx context.Context, inst Instrument, refDate time.Time) (float64, error) {
	return 0, Permanent("paper historical close", errors.New("paper broker has no historical candles"))
}
