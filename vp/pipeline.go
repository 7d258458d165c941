// Package vp computes the voting power of an address.
//
// Key concepts:
//   - Pipeline: snapshot reconciliation, delegation resolution, strategy
//     fan-out and aggregation for one normalised request
//   - Service: the public entry points; normalises and screens requests and
//     puts the result cache in front of the pipeline
//
// Within one request every network is resolved concurrently before any
// strategy runs, and every strategy runs concurrently before aggregation.
// Aggregation always follows the request's strategy order.
package vp

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/metrics"
	"github.com/rony4d/go-score/strategies"
)

// SnapshotResolver maps the home snapshot onto every chain of a request.
type SnapshotResolver interface {
	Resolve(ctx context.Context, home string, snapshot inter.BlockSpec, chains []string) (inter.SnapshotMap, error)
}

// DelegationResolver resolves the delegation state of an address.
type DelegationResolver interface {
	Resolve(ctx context.Context, addr common.Address, network string, block inter.BlockSpec, space string) (inter.Delegation, error)
}

// Pipeline runs the uncached computation.
type Pipeline struct {
	snapshots   SnapshotResolver
	delegations DelegationResolver
	strategies  *strategies.Registry
	chains      evmcore.HandleSource
	log         logrus.FieldLogger
	metrics     *metrics.Metrics
}

// NewPipeline wires the pipeline stages.
func NewPipeline(snapshots SnapshotResolver, delegations DelegationResolver, reg *strategies.Registry, chains evmcore.HandleSource, log logrus.FieldLogger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		snapshots:   snapshots,
		delegations: delegations,
		strategies:  reg,
		chains:      chains,
		log:         log,
		metrics:     m,
	}
}

// Run computes the result of a normalised request.
func (p *Pipeline) Run(ctx context.Context, req inter.Request) (inter.Result, error) {
	start := time.Now()
	networks := req.Networks()

	snapshots, err := p.snapshots.Resolve(ctx, req.Network, req.Snapshot, networks)
	if err != nil {
		return inter.Result{}, fmt.Errorf("resolve snapshots: %w", err)
	}

	var delegations map[string]inter.Delegation
	if req.Delegation {
		delegations, err = p.resolveDelegations(ctx, req, networks, snapshots)
		if err != nil {
			return inter.Result{}, err
		}
	}

	res, err := p.Compute(ctx, req, snapshots, delegations)
	if err != nil {
		return inter.Result{}, err
	}
	p.metrics.Pipeline(time.Since(start))
	return res, nil
}

func (p *Pipeline) resolveDelegations(ctx context.Context, req inter.Request, networks []string, snapshots inter.SnapshotMap) (map[string]inter.Delegation, error) {
	resolved := make([]inter.Delegation, len(networks))

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range networks {
		i, n := i, n
		g.Go(func() error {
			d, err := p.delegations.Resolve(gctx, req.Address, n, snapshots[n], req.Space)
			if err != nil {
				return err
			}
			resolved[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]inter.Delegation, len(networks))
	for i, n := range networks {
		out[n] = resolved[i]
	}
	return out, nil
}

// Compute fans the strategies out and sums their scores. delegations is nil
// when the request does not resolve delegation.
func (p *Pipeline) Compute(ctx context.Context, req inter.Request, snapshots inter.SnapshotMap, delegations map[string]inter.Delegation) (inter.Result, error) {
	scores := make([]map[common.Address]float64, len(req.Strategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range req.Strategies {
		i, cfg := i, cfg
		g.Go(func() error {
			score, err := p.score(gctx, req, cfg, snapshots, delegations)
			if err != nil {
				return fmt.Errorf("strategy %d (%s): %w", i, cfg.Name, err)
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return inter.Result{}, err
	}

	byStrategy := make([]float64, len(req.Strategies))
	for i, cfg := range req.Strategies {
		network := cfg.NetworkOr(req.Network)
		var sub float64
		for _, a := range addressSet(req, network, delegations) {
			sub += scores[i][a]
		}
		byStrategy[i] = sub
	}

	return inter.Result{
		VP:           inter.Sum(byStrategy),
		VPByStrategy: byStrategy,
		VPState:      inter.StateFor(req.Snapshot),
	}, nil
}

func (p *Pipeline) score(ctx context.Context, req inter.Request, cfg inter.StrategyConfig, snapshots inter.SnapshotMap, delegations map[string]inter.Delegation) (map[common.Address]float64, error) {
	network := cfg.NetworkOr(req.Network)
	addrs := addressSet(req, network, delegations)
	if len(addrs) == 0 {
		return map[common.Address]float64{}, nil
	}

	s, err := p.strategies.Get(cfg.Name)
	if err != nil {
		return nil, err
	}
	chain, err := p.chains.Handle(network)
	if err != nil {
		return nil, inter.Upstream(err, "provider for network %s", network)
	}
	return s.Score(ctx, req.Space, network, chain, addrs, cfg.Params, snapshots[network])
}

// addressSet returns the addresses whose scores count for a strategy on
// network: the address itself without delegation, otherwise its delegators
// plus itself unless it delegated its own vote away.
func addressSet(req inter.Request, network string, delegations map[string]inter.Delegation) []common.Address {
	if !req.Delegation {
		return []common.Address{req.Address}
	}

	d := delegations[network]
	addrs := make([]common.Address, 0, len(d.In)+1)
	seen := make(map[common.Address]struct{}, len(d.In)+1)
	add := func(a common.Address) {
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		addrs = append(addrs, a)
	}
	for _, a := range d.In {
		add(a)
	}
	if !d.Delegated() {
		add(req.Address)
	}
	return addrs
}
