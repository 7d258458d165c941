// Package validations holds the authorization predicates a space can require
// from a proposal author.
package validations

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/strategies"
)

// Any is the sentinel name that accepts every author.
const Any = "any"

// Validation decides whether an author may act in a space.
type Validation interface {
	Validate(ctx context.Context, author common.Address, space, network string, snapshot inter.BlockSpec, params inter.Params) (bool, error)
}

// Registry maps validation names to implementations.
type Registry struct {
	byName map[string]Validation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Validation)}
}

// Register adds or replaces a validation.
func (r *Registry) Register(name string, v Validation) {
	r.byName[name] = v
}

// Run evaluates a validate request. An empty name or Any passes without
// running anything; an unknown name fails with NotFound.
func (r *Registry) Run(ctx context.Context, req inter.ValidateRequest) (bool, error) {
	if req.Validation == "" || req.Validation == Any {
		return true, nil
	}
	v, ok := r.byName[req.Validation]
	if !ok {
		return false, inter.NotFound("Validation not found")
	}
	return v.Validate(ctx, req.Author, req.Space, req.Network, req.Snapshot, req.Params)
}

// Scorer computes voting power without delegation.
type Scorer interface {
	Score(ctx context.Context, req inter.Request) (inter.Result, error)
}

// Basic accepts authors whose voting power over the given strategies
// reaches minScore. Without a positive minScore every author passes.
type Basic struct {
	Scorer        Scorer
	MaxStrategies int
}

type basicParams struct {
	MinScore   float64                `json:"minScore" validate:"gte=0"`
	Strategies []inter.StrategyConfig `json:"strategies"`
}

func (b Basic) Validate(ctx context.Context, author common.Address, space, network string, snapshot inter.BlockSpec, params inter.Params) (bool, error) {
	var p basicParams
	if err := strategies.DecodeParams(params, &p); err != nil {
		return false, err
	}
	if p.MinScore <= 0 {
		return true, nil
	}

	req := inter.Request{
		Address:    author,
		Network:    network,
		Strategies: p.Strategies,
		Snapshot:   snapshot,
		Space:      space,
	}
	res, err := b.Scorer.Score(ctx, req.Normalize(b.MaxStrategies))
	if err != nil {
		return false, err
	}
	return res.VP >= p.MinScore, nil
}
