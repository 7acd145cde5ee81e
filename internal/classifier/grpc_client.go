// Package classifier is an optional bridge to the external market-state
// classifier: per spec, the classifier itself (clustering/neural regime
// labeling) is out of scope, but it "is a downstream consumer of
// observations and publishes StateChange/ExtremeEvent" whose output "may
// gate new opens (optional policy) but do not close existing hedges."
// Unconfigured (no address), the bridge never dials out and every method
// is a no-op — the engine never depends on it.
package classifier

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// tickRequest is what Classify forwards to the worker for one symbol.
type tickRequest struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// tickResponse is the worker's classification for that tick.
type tickResponse struct {
	State     string `json:"state"`           // e.g. "trending", "ranging", "volatile"
	Extreme   bool   `json:"extreme"`         // worker-flagged extreme condition
	ExtremeOf string `json:"extreme_of,omitempty"`
}

// WorkerClient sends ticks to the external classifier worker over gRPC.
type WorkerClient struct {
	conn   *grpc.ClientConn
	method string
}

// NewWorkerClient dials addr. Connection is lazy/non-blocking; failures
// surface on the first call, consistent with the bridge's best-effort
// contract.
func NewWorkerClient(addr string) (*WorkerClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, err
	}
	return &WorkerClient{conn: conn, method: "/classifier.ClassifierService/Classify"}, nil
}

func (w *WorkerClient) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// Classify forwards one price/volume observation and returns the worker's
// regime classification.
func (w *WorkerClient) Classify(ctx context.Context, symbol string, price, volume float64) (tickResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req := tickRequest{Symbol: symbol, Price: price, Volume: volume}
	var resp tickResponse
	if err := w.conn.Invoke(ctx, w.method, &req, &resp); err != nil {
		return tickResponse{}, err
	}
	return resp, nil
}
