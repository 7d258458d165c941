// Package strategies holds the scoring strategies a request can name.
//
// A strategy measures a score per address at a block on one network. It must
// be a pure function of its inputs: the same addresses, parameters and fixed
// block always yield the same scores.
//
// Key concepts:
//   - Strategy: the scoring capability
//   - Registry: name to strategy lookup, built once at startup
//   - Params: each strategy decodes the opaque request parameters into its
//     own struct and checks them with struct tags
//
// Usage:
//   reg := strategies.Default()
//   s, err := reg.Get("erc20-balance-of")
//   scores, err := s.Score(ctx, space, network, handle, addrs, params, block)
package strategies

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/inter"
)

// Strategy scores addresses.
type Strategy interface {
	// Score returns a score per address. Addresses missing from the result
	// score zero.
	Score(ctx context.Context, space, network string, provider evmcore.Handle, addrs []common.Address, params inter.Params, block inter.BlockSpec) (map[common.Address]float64, error)
}

// Registry maps strategy names to implementations.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Strategy)}
}

// Default returns a registry with every built-in strategy.
func Default() *Registry {
	r := NewRegistry()
	r.Register("erc20-balance-of", ERC20BalanceOf{})
	r.Register("erc721", ERC721{})
	r.Register("whitelist", Whitelist{})
	r.Register("whitelist-weighted", WhitelistWeighted{})
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(name string, s Strategy) {
	r.byName[name] = s
}

// Get returns the named strategy or a NotFound error.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, inter.NotFound("strategy %q not found", name)
	}
	return s, nil
}

// Names lists the registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckAll fails with NotFound naming every unknown strategy of a request.
func (r *Registry) CheckAll(configs []inter.StrategyConfig) error {
	var unknown []string
	seen := make(map[string]struct{})
	for _, c := range configs {
		if _, ok := r.byName[c.Name]; ok {
			continue
		}
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		unknown = append(unknown, fmt.Sprintf("%q", c.Name))
	}
	if len(unknown) > 0 {
		return inter.NotFound("invalid strategies: %s", strings.Join(unknown, ", "))
	}
	return nil
}

var validate = validator.New()

// DecodeParams decodes params into out, a pointer to a struct with json
// tags, and checks its validate tags. Failures are RejectedInput errors.
func DecodeParams(params inter.Params, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]interface{}(params)); err != nil {
		return inter.Rejected("invalid params: %v", err)
	}
	if err := validate.Struct(out); err != nil {
		return inter.Rejected("invalid params: %v", err)
	}
	return nil
}

// zeroScores gives every address an explicit zero.
func zeroScores(addrs []common.Address) map[common.Address]float64 {
	out := make(map[common.Address]float64, len(addrs))
	for _, a := range addrs {
		out[a] = 0
	}
	return out
}
