package predict

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"scalping-core/pkg/broker"
)

// WorkerClient asks the Python model worker for a signal over gRPC. The
// worker speaks a single loosely-typed Predict method with struct payloads,
// so the bot keeps working across model-side schema changes.
type WorkerClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

const predictMethod = "/predictor.Predictor/Predict"

func NewWorkerClient(addr string) (*WorkerClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("predict: dial %s: %w", addr, err)
	}
	return &WorkerClient{conn: conn, timeout: 2 * time.Second}, nil
}

func (w *WorkerClient) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// Verify confirms the worker answers before trading starts. Dialing is lazy,
// so a dead or absent worker only surfaces on the first call; callers that
// must fail fast at startup run Verify first.
func (w *WorkerClient) Verify(ctx context.Context) error {
	if _, err := w.Predict(ctx, "", nil); err != nil {
		return fmt.Errorf("predict worker unreachable: %w", err)
	}
	return nil
}

// Predict forwards the recent bars and translates the response back into a
// Signal. A worker that answers nonsense degrades to "hold".
func (w *WorkerClient) Predict(ctx context.Context, symbol string, bars []broker.Bar) (*Signal, error) {
	closes := make([]interface{}, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"symbol": symbol,
		"closes": closes,
	})
	if err != nil {
		return nil, fmt.Errorf("predict: build request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := w.conn.Invoke(ctx, predictMethod, req, resp); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	fields := resp.GetFields()
	sig := &Signal{Action: ActionHold, Symbol: symbol}
	if v, ok := fields["action"]; ok {
		sig.Action = v.GetStringValue()
	}
	if v, ok := fields["confidence"]; ok {
		sig.Confidence = v.GetNumberValue()
	}
	if v, ok := fields["note"]; ok {
		sig.Note = v.GetStringValue()
	}
	switch sig.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		sig.Action = ActionHold
	}
	return sig, nil
}
