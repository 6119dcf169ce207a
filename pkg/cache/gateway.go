package cache

import (
	"context"
	"time"

	"scalping-core/pkg/broker"
)

// Gateway decorates a broker gateway with the symbol metadata cache. Only
// SymbolInfo is cached; quotes, positions and order calls always hit the
// terminal because staleness there costs money.
type Gateway struct {
	broker.Gateway
	symbols *SymbolCache
}

// WrapGateway adds symbol metadata caching to gw.
func WrapGateway(gw broker.Gateway, ttl time.Duration) *Gateway {
	return &Gateway{Gateway: gw, symbols: NewSymbolCache(ttl)}
}

func (g *Gateway) SymbolInfo(ctx context.Context, symbol string) (*broker.SymbolInfo, error) {
	if info, ok := g.symbols.Get(symbol); ok {
		return &info, nil
	}
	info, err := g.Gateway.SymbolInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	g.symbols.Set(symbol, *info)
	return info, nil
}
