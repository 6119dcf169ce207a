package broker

import (
	"context"
	"sync"
	"time"
)

// Gateway abstracts the broker terminal. Implementations return a nil
// result together with an error when the terminal gives no usable reply
// (transport failure); a structured refusal arrives as an OrderResult with
// a non-success retcode and a nil error.
type Gateway interface {
	Tick(ctx context.Context, symbol string) (*Tick, error)
	SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	// Rates returns the most recent count minute bars, oldest first.
	Rates(ctx context.Context, symbol string, count int) ([]Bar, error)
	// Positions enumerates open positions; empty symbol means all symbols.
	Positions(ctx context.Context, symbol string) ([]Position, error)
	OrderSend(ctx context.Context, req OrderRequest) (*OrderResult, error)
	HistoryDeals(ctx context.Context, from, to time.Time) ([]Deal, error)
	AccountInfo(ctx context.Context) (*AccountInfo, error)
}

// Serialized wraps a Gateway with a mutex so only one call is in flight at a
// time. The underlying terminal connection is not safe for concurrent use;
// this is the broker-call lock domain, independent of any ledger lock.
type Serialized struct {
	mu sync.Mutex
	gw Gateway
}

// Serialize returns gw behind the terminal-connection mutex.
func Serialize(gw Gateway) *Serialized {
	return &Serialized{gw: gw}
}

func (s *Serialized) Tick(ctx context.Context, symbol string) (*Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw.Tick(ctx, symbol)
}

func (s *Serialized) SymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw.SymbolInfo(ctx, symbol)
}

func (s *Serialized) Rates(ctx context.Context, symbol string, count int) ([]Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw.Rates(ctx, symbol, count)
}

func (s *Serialized) Positions(ctx context.Context, symbol string) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw.Positions(ctx, symbol)
}

func (s *Serialized) OrderSend(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw.OrderSend(ctx, req)
}

func (s *Serialized) HistoryDeals(ctx context.Context, from, to time.Time) ([]Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw.HistoryDeals(ctx, from, to)
}

func (s *Serialized) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw.AccountInfo(ctx)
}
