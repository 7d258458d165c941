package evmcore

import (
	"context"

	"github.com/rony4d/go-score/inter"
)

// Handle is the per-network chain access given to strategies: the raw
// provider plus batched reads against the same network.
type Handle interface {
	Provider
	Aggregate(ctx context.Context, block inter.BlockSpec, calls []Call) ([][]interface{}, error)
}

// HandleSource hands out network-bound handles.
type HandleSource interface {
	Handle(network string) (Handle, error)
}

type handle struct {
	Provider
	network string
	caller  Caller
}

func (h *handle) Aggregate(ctx context.Context, block inter.BlockSpec, calls []Call) ([][]interface{}, error) {
	return h.caller.Aggregate(ctx, h.network, block, calls)
}

var _ HandleSource = (*Multicall)(nil)

// Handle binds the multicall primitive and the provider of one network.
func (m *Multicall) Handle(network string) (Handle, error) {
	provider, err := m.providers.Get(network)
	if err != nil {
		return nil, err
	}
	return &handle{Provider: provider, network: network, caller: m}, nil
}
