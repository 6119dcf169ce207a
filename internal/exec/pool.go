package exec

import "context"

// Pool bounds the number of concurrent broker-facing operations so a slow
// terminal round-trip cannot stall every API request at once.
type Pool struct {
	slots chan struct{}
}

// NewPool creates a pool with n worker slots.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = 10
	}
	return &Pool{slots: make(chan struct{}, n)}
}

// Do runs fn once a slot is free, or returns the context error if the caller
// gives up first.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()
	fn()
	return nil
}
