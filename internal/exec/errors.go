package exec

import "errors"

// Failure classes surfaced by the executors. Expected broker conditions are
// reported through these sentinels (wrapped with detail) so callers can
// branch without parsing retcodes.
var (
	// ErrInvalidVolume means the lot size violates the symbol's volume
	// limits; the order was never sent.
	ErrInvalidVolume = errors.New("lot size outside symbol volume limits")

	// ErrRejected is an explicit broker refusal. Never retried: retrying a
	// rejection wastes the deviation budget and may duplicate risk.
	ErrRejected = errors.New("order rejected by broker")

	// ErrRetriesExhausted means every attempt hit a retryable or unknown
	// condition.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrTransport means the terminal gave no usable reply.
	ErrTransport = errors.New("no response from terminal")

	// ErrSlippageExceeded means no cycle produced a fill within the
	// configured slippage budget.
	ErrSlippageExceeded = errors.New("could not fill within slippage limit")

	// ErrCompensationFailed means an over-slippage fill could not be closed
	// back out. The position is still open; callers must surface this
	// distinctly because it is uncontrolled risk.
	ErrCompensationFailed = errors.New("compensating close failed after slippage rejection")
)
