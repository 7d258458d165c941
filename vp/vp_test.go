package vp

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-score/blockfinder"
	"github.com/rony4d/go-score/cache"
	"github.com/rony4d/go-score/contracts/erc20"
	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/evmcore/evmtest"
	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/networks"
	"github.com/rony4d/go-score/strategies"
	"github.com/rony4d/go-score/subgraph"
)

var (
	dai   = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	voter = common.HexToAddress("0x91fd2c8d24767db4ece7069aa27832ffaf8590f3")
	other = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func tokens(n float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(n), new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	out, _ := f.Int(nil)
	return out
}

func tokenChain(head uint64, balances map[common.Address]*big.Int) *evmtest.Chain {
	chain := evmtest.NewChain(head)
	chain.Handle(&erc20.ABI, erc20.BalanceOf, func(target common.Address, args []interface{}, block *big.Int) ([]interface{}, error) {
		b, ok := balances[args[0].(common.Address)]
		if !ok {
			b = new(big.Int)
		}
		return []interface{}{b}, nil
	})
	return chain
}

func erc20Strategy(network string) inter.StrategyConfig {
	return inter.StrategyConfig{
		Name:    "erc20-balance-of",
		Network: network,
		Params:  inter.Params{"address": dai, "decimals": json.Number("18")},
	}
}

// fakeDelegations returns fixed delegation states.
type fakeDelegations struct {
	mu    sync.Mutex
	state map[string]inter.Delegation
	err   error
	calls int
}

func (f *fakeDelegations) Resolve(ctx context.Context, addr common.Address, network string, block inter.BlockSpec, space string) (inter.Delegation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.state[network], f.err
}

// blockIndex answers block finder queries with one fixed block per chain.
type blockIndex map[string]uint64

func (b blockIndex) Request(ctx context.Context, url string, q subgraph.Query, out interface{}) error {
	type block struct {
		Network string `json:"network"`
		Number  uint64 `json:"number"`
	}
	var resp struct {
		Blocks []block `json:"blocks"`
	}
	for n, num := range b {
		resp.Blocks = append(resp.Blocks, block{Network: n, Number: num})
	}
	raw, _ := json.Marshal(resp)
	return json.Unmarshal(raw, out)
}

type env struct {
	chains      evmtest.Source
	delegations *fakeDelegations
	store       *cache.KVStore
	registry    *strategies.Registry
	service     *Service
}

func newEnv(t *testing.T, chains evmtest.Source, index blockIndex) *env {
	log, _ := test.NewNullLogger()
	table := networks.DefaultTable()

	reconciler, err := blockfinder.NewReconciler(blockfinder.DefaultConfig(), chains, index, log, nil)
	require.NoError(t, err)

	e := &env{
		chains:      chains,
		delegations: &fakeDelegations{state: map[string]inter.Delegation{}},
		store:       cache.NewMemoryStore(),
		registry:    strategies.Default(),
	}
	pipeline := NewPipeline(reconciler, e.delegations, e.registry, evmcore.NewMulticall(chains, table, 0), log, nil)
	cfg := DefaultConfig()
	cfg.DisabledSpaces = []string{"spam.eth"}
	e.service = NewService(cfg, pipeline, cache.New(e.store, cache.DefaultExcludedSpaces, log, nil), blockfinder.NewHeights(chains, 0), e.registry, log)
	return e
}

// TestGetVp_SingleStrategy measures one ERC-20 balance at a fixed block.
func TestGetVp_SingleStrategy(t *testing.T) {
	require := require.New(t)

	chain := tokenChain(2000, map[common.Address]*big.Int{voter: tokens(150.5)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain}, nil)

	req := inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{erc20Strategy("")},
		Snapshot:   inter.BlockAt(1000),
		Space:      "ens.eth",
	}
	res, fromCache, err := e.service.GetVp(context.Background(), req)
	require.NoError(err)
	require.False(fromCache)
	require.Equal(inter.Result{VP: 150.5, VPByStrategy: []float64{150.5}, VPState: inter.StateFinal}, res)
	require.Equal(int64(1000), chain.LastBlockArg().Int64())

	// the same request is served from the cache without chain reads
	aggregates := chain.Aggregates()
	again, fromCache, err := e.service.GetVp(context.Background(), req)
	require.NoError(err)
	require.True(fromCache)
	require.Equal(res, again)
	require.Equal(aggregates, chain.Aggregates())
}

// TestGetVp_DelegatedOut checks that an address which delegated its vote away
// only counts its delegators.
func TestGetVp_DelegatedOut(t *testing.T) {
	require := require.New(t)

	chain := tokenChain(2000, map[common.Address]*big.Int{voter: tokens(100), other: tokens(5)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain}, nil)
	delegate := common.HexToAddress("0x00000000000000000000000000000000000de1e9")
	e.delegations.state[networks.Mainnet] = inter.Delegation{Out: &delegate, In: []common.Address{other}}

	res, _, err := e.service.GetVp(context.Background(), inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{erc20Strategy("")},
		Snapshot:   inter.BlockAt(1000),
		Space:      "ens.eth",
		Delegation: true,
	})
	require.NoError(err)
	require.Equal(5.0, res.VP)
	require.Equal(1, e.delegations.calls)
}

func TestGetVp_DelegatedIn(t *testing.T) {
	chain := tokenChain(2000, map[common.Address]*big.Int{voter: tokens(100), other: tokens(5)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain}, nil)
	e.delegations.state[networks.Mainnet] = inter.Delegation{In: []common.Address{other, other}}

	res, _, err := e.service.GetVp(context.Background(), inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{erc20Strategy(""), erc20Strategy("")},
		Snapshot:   inter.BlockAt(1000),
		Delegation: true,
	})
	require.NoError(t, err)
	require.Equal(t, []float64{105, 105}, res.VPByStrategy)
	require.Equal(t, 210.0, res.VP)
}

func TestGetVp_EmptyAddressSet(t *testing.T) {
	chain := tokenChain(2000, map[common.Address]*big.Int{voter: tokens(100)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain}, nil)
	delegate := other
	e.delegations.state[networks.Mainnet] = inter.Delegation{Out: &delegate}

	res, _, err := e.service.GetVp(context.Background(), inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{erc20Strategy("")},
		Snapshot:   inter.BlockAt(1000),
		Delegation: true,
	})
	require.NoError(t, err)
	require.Equal(t, inter.Result{VP: 0, VPByStrategy: []float64{0}, VPState: inter.StateFinal}, res)
	require.Zero(t, chain.Aggregates())
}

// TestGetVp_LatestAcrossChains runs two strategies on two chains at latest:
// every chain reads its head and nothing is cached.
func TestGetVp_LatestAcrossChains(t *testing.T) {
	require := require.New(t)

	mainnet := tokenChain(2000, map[common.Address]*big.Int{voter: tokens(1)})
	polygon := tokenChain(9000, map[common.Address]*big.Int{voter: tokens(2)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: mainnet, networks.Polygon: polygon}, nil)

	req := inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{erc20Strategy(""), erc20Strategy(networks.Polygon)},
		Snapshot:   inter.Latest(),
		Space:      "ens.eth",
	}
	for i := 0; i < 2; i++ {
		res, fromCache, err := e.service.GetVp(context.Background(), req)
		require.NoError(err)
		require.False(fromCache)
		require.Equal(inter.Result{VP: 3, VPByStrategy: []float64{1, 2}, VPState: inter.StatePending}, res)
	}
	require.Nil(mainnet.LastBlockArg())
	require.Nil(polygon.LastBlockArg())
	require.Zero(mainnet.HeaderReads())
}

func TestGetVp_ReconciledBlocks(t *testing.T) {
	mainnet := tokenChain(20000000, map[common.Address]*big.Int{voter: tokens(1)})
	mainnet.SetHeader(15000000, 1655000000)
	polygon := tokenChain(40000000, map[common.Address]*big.Int{voter: tokens(2)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: mainnet, networks.Polygon: polygon}, blockIndex{networks.Polygon: 29900000})

	res, _, err := e.service.GetVp(context.Background(), inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{erc20Strategy(""), erc20Strategy(networks.Polygon)},
		Snapshot:   inter.BlockAt(15000000),
	})
	require.NoError(t, err)
	require.Equal(t, inter.StateFinal, res.VPState)
	require.Equal(t, int64(15000000), mainnet.LastBlockArg().Int64())
	require.Equal(t, int64(29900000), polygon.LastBlockArg().Int64())
}

// TestGetVp_FutureBlock treats a snapshot past the head exactly like latest.
func TestGetVp_FutureBlock(t *testing.T) {
	require := require.New(t)

	chain := tokenChain(2000, map[common.Address]*big.Int{voter: tokens(7)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain}, nil)

	base := inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{erc20Strategy("")},
		Space:      "ens.eth",
	}
	future := base
	future.Snapshot = inter.BlockAt(5000)
	latest := base
	latest.Snapshot = inter.Latest()

	got, fromCache, err := e.service.GetVp(context.Background(), future)
	require.NoError(err)
	require.False(fromCache)
	require.Nil(chain.LastBlockArg())

	want, _, err := e.service.GetVp(context.Background(), latest)
	require.NoError(err)
	require.Equal(want, got)
	require.Equal(inter.StatePending, got.VPState)

	_, fromCache, err = e.service.GetVp(context.Background(), future)
	require.NoError(err)
	require.False(fromCache)
}

func TestGetVp_Rejected(t *testing.T) {
	chain := tokenChain(2000, nil)
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain, networks.DisabledLens: chain}, nil)

	tests := []struct {
		name string
		req  inter.Request
		kind inter.Kind
	}{
		{
			name: "disabled network",
			req:  inter.Request{Network: networks.DisabledLens, Strategies: []inter.StrategyConfig{erc20Strategy("")}, Snapshot: inter.BlockAt(1)},
			kind: inter.KindRejectedInput,
		},
		{
			name: "disabled space",
			req:  inter.Request{Network: networks.Mainnet, Space: "spam.eth", Strategies: []inter.StrategyConfig{erc20Strategy("")}, Snapshot: inter.BlockAt(1)},
			kind: inter.KindRejectedInput,
		},
		{
			name: "unknown strategy",
			req:  inter.Request{Network: networks.Mainnet, Strategies: []inter.StrategyConfig{{Name: "ticket"}}, Snapshot: inter.BlockAt(1)},
			kind: inter.KindNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.service.GetVp(context.Background(), tt.req)
			require.Equal(t, tt.kind, inter.KindOf(err))
		})
	}
	require.Zero(t, chain.HeadReads())
	require.Zero(t, chain.Aggregates())
}

func TestGetVp_DelegationFailure(t *testing.T) {
	chain := tokenChain(2000, nil)
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain}, nil)
	e.delegations.err = inter.Upstream(errors.New("status 502"), "subgraph")

	_, _, err := e.service.GetVp(context.Background(), inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{erc20Strategy("")},
		Snapshot:   inter.BlockAt(1000),
		Delegation: true,
	})
	require.Equal(t, inter.KindUpstreamTransport, inter.KindOf(err))
	require.Zero(t, chain.Aggregates())
}

// slowStrategy finishes after a delay so completion order differs from
// request order.
type slowStrategy struct {
	delay time.Duration
	score float64
}

func (s slowStrategy) Score(ctx context.Context, space, network string, provider evmcore.Handle, addrs []common.Address, params inter.Params, block inter.BlockSpec) (map[common.Address]float64, error) {
	time.Sleep(s.delay)
	out := make(map[common.Address]float64, len(addrs))
	for _, a := range addrs {
		out[a] = s.score
	}
	return out, nil
}

func TestGetVp_StrategyOrder(t *testing.T) {
	require := require.New(t)

	e := newEnv(t, evmtest.Source{networks.Mainnet: tokenChain(2000, nil)}, nil)
	e.registry.Register("slow", slowStrategy{delay: 50 * time.Millisecond, score: 0.1})
	e.registry.Register("fast", slowStrategy{score: 0.2})
	e.registry.Register("medium", slowStrategy{delay: 20 * time.Millisecond, score: 0.3})

	res, _, err := e.service.GetVp(context.Background(), inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: []inter.StrategyConfig{{Name: "slow"}, {Name: "fast"}, {Name: "medium"}},
		Snapshot:   inter.BlockAt(1000),
	})
	require.NoError(err)
	require.Equal([]float64{0.1, 0.2, 0.3}, res.VPByStrategy)
	slow, fast, medium := 0.1, 0.2, 0.3
	require.Equal(slow+fast+medium, res.VP)
	require.Equal(inter.Sum(res.VPByStrategy), res.VP)
}

func TestGetVp_MaxStrategies(t *testing.T) {
	e := newEnv(t, evmtest.Source{networks.Mainnet: tokenChain(2000, nil)}, nil)
	e.registry.Register("one", slowStrategy{score: 1})

	configs := make([]inter.StrategyConfig, 10)
	for i := range configs {
		configs[i] = inter.StrategyConfig{Name: "one"}
	}
	res, _, err := e.service.GetVp(context.Background(), inter.Request{
		Address:    voter,
		Network:    networks.Mainnet,
		Strategies: configs,
		Snapshot:   inter.BlockAt(1000),
	})
	require.NoError(t, err)
	require.Len(t, res.VPByStrategy, DefaultMaxStrategies)
	require.Equal(t, 8.0, res.VP)
}

func TestValidate_Basic(t *testing.T) {
	chain := tokenChain(2000, map[common.Address]*big.Int{voter: tokens(10)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain}, nil)

	params := inter.Params{
		"minScore": json.Number("5"),
		"strategies": []interface{}{map[string]interface{}{
			"name":   "erc20-balance-of",
			"params": map[string]interface{}{"address": dai, "decimals": json.Number("18")},
		}},
	}
	ok, err := e.service.Validate(context.Background(), inter.ValidateRequest{
		Validation: "basic",
		Author:     voter,
		Network:    networks.Mainnet,
		Snapshot:   inter.BlockAt(1000),
		Params:     params,
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.service.Validate(context.Background(), inter.ValidateRequest{
		Validation: "basic",
		Author:     other,
		Network:    networks.Mainnet,
		Snapshot:   inter.BlockAt(1000),
		Params:     params,
	})
	require.NoError(t, err)
	require.False(t, ok)
}

// TestValidate_FutureBlock checks that validation reads a snapshot beyond the
// chain head at latest, the same way get_vp does.
func TestValidate_FutureBlock(t *testing.T) {
	require := require.New(t)

	chain := tokenChain(2000, map[common.Address]*big.Int{voter: tokens(10)})
	e := newEnv(t, evmtest.Source{networks.Mainnet: chain}, nil)

	ok, err := e.service.Validate(context.Background(), inter.ValidateRequest{
		Validation: "basic",
		Author:     voter,
		Network:    networks.Mainnet,
		Snapshot:   inter.BlockAt(5000),
		Params: inter.Params{
			"minScore": json.Number("5"),
			"strategies": []interface{}{map[string]interface{}{
				"name":   "erc20-balance-of",
				"params": map[string]interface{}{"address": dai, "decimals": json.Number("18")},
			}},
		},
	})
	require.NoError(err)
	require.True(ok)
	require.Nil(chain.LastBlockArg())
}
