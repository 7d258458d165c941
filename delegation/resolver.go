// Package delegation resolves who an address votes for and who votes through
// it on one chain within one space.
//
// Outbound delegation is read from the on-chain registry through the batched
// call primitive. Inbound delegation is read from the chain's delegation
// subgraph and then checked against the registry: a base delegator only
// counts if its effective delegate for the space is still this address.
package delegation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	registry "github.com/rony4d/go-score/contracts/delegation"
	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/networks"
	"github.com/rony4d/go-score/subgraph"
)

// DefaultPageSize is the number of index records fetched per query.
const DefaultPageSize = 1000

// Resolver computes inter.Delegation values.
type Resolver struct {
	caller   evmcore.Caller
	index    subgraph.Querier
	table    networks.Table
	pageSize int
	log      logrus.FieldLogger
}

// NewResolver creates a resolver reading the registry through caller and the
// delegation index through index.
func NewResolver(caller evmcore.Caller, index subgraph.Querier, table networks.Table, log logrus.FieldLogger) *Resolver {
	return &Resolver{
		caller:   caller,
		index:    index,
		table:    table,
		pageSize: DefaultPageSize,
		log:      log,
	}
}

// WithPageSize changes the index page size.
func (r *Resolver) WithPageSize(n int) *Resolver {
	if n > 0 {
		r.pageSize = n
	}
	return r
}

// Resolve returns both directions of the address's delegation. The two
// lookups run concurrently and any failure fails the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, addr common.Address, network string, block inter.BlockSpec, space string) (inter.Delegation, error) {
	var (
		out *common.Address
		in  []common.Address
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out, err = r.Out(gctx, addr, network, block, space)
		return err
	})
	g.Go(func() (err error) {
		in, err = r.In(gctx, addr, network, block, space)
		return err
	})
	if err := g.Wait(); err != nil {
		return inter.Delegation{}, fmt.Errorf("delegations of %s on network %s: %w", addr.Hex(), network, err)
	}

	r.log.WithFields(logrus.Fields{
		"address":   addr.Hex(),
		"network":   network,
		"space":     space,
		"delegated": out != nil,
		"inbound":   len(in),
	}).Debug("Delegations resolved")

	return inter.Delegation{Out: out, In: in}, nil
}

// Out returns the address's effective delegate, or nil.
func (r *Resolver) Out(ctx context.Context, addr common.Address, network string, block inter.BlockSpec, space string) (*common.Address, error) {
	outs, err := r.OutMany(ctx, []common.Address{addr}, network, block, space)
	if err != nil {
		return nil, err
	}
	return outs[addr], nil
}

// OutMany resolves the effective delegate of every address: the space
// delegation when set, otherwise the base delegation, otherwise nil. It reads
// the on-chain registry only and works on chains without a delegation index.
func (r *Resolver) OutMany(ctx context.Context, addrs []common.Address, network string, block inter.BlockSpec, space string) (map[common.Address]*common.Address, error) {
	out := make(map[common.Address]*common.Address, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}

	id, err := registry.SpaceID(space)
	if err != nil {
		return nil, inter.Rejected("%v", err)
	}

	calls := make([]evmcore.Call, 0, 2*len(addrs))
	for _, a := range addrs {
		calls = append(calls,
			registryCall(a, registry.EmptySpace),
			registryCall(a, id),
		)
	}
	results, err := r.caller.Aggregate(ctx, network, block, calls)
	if err != nil {
		return nil, err
	}

	for i, a := range addrs {
		base, err := decodeAddress(results[2*i])
		if err != nil {
			return nil, err
		}
		scoped, err := decodeAddress(results[2*i+1])
		if err != nil {
			return nil, err
		}

		switch {
		case scoped != (common.Address{}):
			out[a] = &scoped
		case base != (common.Address{}):
			out[a] = &base
		default:
			out[a] = nil
		}
	}
	return out, nil
}

// In returns the delegators voting through addr, deduplicated and never
// including addr itself.
func (r *Resolver) In(ctx context.Context, addr common.Address, network string, block inter.BlockSpec, space string) ([]common.Address, error) {
	n := r.table.Get(network)
	if !n.HasDelegationIndex() {
		return []common.Address{}, nil
	}

	records, err := r.fetchRecords(ctx, n.DelegationSubgraph, addr, block, space)
	if err != nil {
		return nil, err
	}

	var scoped, base []common.Address
	for _, rec := range records {
		if !common.IsHexAddress(rec.Delegator) {
			return nil, inter.Upstream(fmt.Errorf("invalid delegator %q", rec.Delegator), "delegation index")
		}
		delegator := common.HexToAddress(rec.Delegator)
		switch {
		case rec.Space == space:
			scoped = append(scoped, delegator)
		case rec.IsBase():
			base = append(base, delegator)
		}
	}

	// a space delegation overrides the same delegator's base delegation
	overridden := make(map[common.Address]struct{}, len(scoped))
	for _, d := range scoped {
		overridden[d] = struct{}{}
	}
	remaining := base[:0]
	for _, d := range base {
		if _, ok := overridden[d]; !ok {
			remaining = append(remaining, d)
		}
	}

	delegators := scoped
	if len(remaining) > 0 {
		outs, err := r.OutMany(ctx, uniq(remaining), network, block, space)
		if err != nil {
			return nil, err
		}
		for _, d := range remaining {
			if to := outs[d]; to != nil && *to == addr {
				delegators = append(delegators, d)
			}
		}
	}

	result := make([]common.Address, 0, len(delegators))
	for _, d := range uniq(delegators) {
		if d != addr {
			result = append(result, d)
		}
	}
	return result, nil
}

func (r *Resolver) fetchRecords(ctx context.Context, url string, addr common.Address, block inter.BlockSpec, space string) ([]inter.DelegationRecord, error) {
	args := subgraph.Args{
		{Name: "first", Value: r.pageSize},
		{Name: "skip", Value: 0},
		{Name: "block", Value: subgraph.Args{{Name: "number", Value: block.Number}}},
		{Name: "where", Value: subgraph.Args{
			{Name: "space_in", Value: []string{"", space}},
			{Name: "delegate", Value: strings.ToLower(addr.Hex())},
		}},
	}
	if block.IsLatest() {
		args = args.Without("block")
	}

	var records []inter.DelegationRecord
	for page := 0; ; page++ {
		args = args.Set("skip", page*r.pageSize)
		q := subgraph.Query{
			Entity: "delegations",
			Args:   args,
			Fields: []string{"delegator", "space"},
		}

		var data struct {
			Delegations []inter.DelegationRecord `json:"delegations"`
		}
		if err := r.index.Request(ctx, url, q, &data); err != nil {
			return nil, err
		}
		records = append(records, data.Delegations...)
		if len(data.Delegations) < r.pageSize {
			return records, nil
		}
	}
}

func registryCall(delegator common.Address, id [32]byte) evmcore.Call {
	return evmcore.Call{
		Target: registry.ContractAddress,
		ABI:    &registry.ABI,
		Method: registry.Method,
		Args:   []interface{}{delegator, id},
	}
}

func decodeAddress(vals []interface{}) (common.Address, error) {
	if len(vals) != 1 {
		return common.Address{}, inter.Upstream(fmt.Errorf("got %d outputs", len(vals)), "decode delegation")
	}
	a, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, inter.Upstream(fmt.Errorf("unexpected %T", vals[0]), "decode delegation")
	}
	return a, nil
}

// uniq drops repeated addresses, keeping first occurrences in order.
func uniq(addrs []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(addrs))
	out := make([]common.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
