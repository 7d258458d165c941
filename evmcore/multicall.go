package evmcore

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/rony4d/go-score/contracts/multicall"
	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/networks"
)

// DefaultPageSize is the number of calls packed into one aggregate call.
const DefaultPageSize = 500

// Call is one read-only contract call in a batch.
type Call struct {
	Target common.Address
	ABI    *abi.ABI
	Method string
	Args   []interface{}
}

// Caller executes batches of read-only calls. Results come back decoded and
// in input order.
type Caller interface {
	Aggregate(ctx context.Context, network string, block inter.BlockSpec, calls []Call) ([][]interface{}, error)
}

// Multicall implements Caller on top of the per-chain aggregate contract.
type Multicall struct {
	providers ProviderSource
	table     networks.Table
	pageSize  int
}

// NewMulticall creates the batched call primitive. A non-positive page size
// falls back to DefaultPageSize.
func NewMulticall(providers ProviderSource, table networks.Table, pageSize int) *Multicall {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Multicall{
		providers: providers,
		table:     table,
		pageSize:  pageSize,
	}
}

// Aggregate splits calls into pages, runs every page concurrently against the
// chain's aggregate contract at the given block and decodes each return
// value with its call's ABI.
//
// Parameters:
//   - network: chain id whose provider and multicall contract are used
//   - block: block tag applied to every page
//   - calls: the batch; an empty batch returns no results and no error
//
// Returns:
//   - one decoded output list per call, aligned with calls
//   - the first page or decoding error; partial results are never returned
func (m *Multicall) Aggregate(ctx context.Context, network string, block inter.BlockSpec, calls []Call) ([][]interface{}, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	provider, err := m.providers.Get(network)
	if err != nil {
		return nil, err
	}
	target := m.table.Get(network).Multicall

	raw := make([][]byte, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(calls); start += m.pageSize {
		start := start
		end := start + m.pageSize
		if end > len(calls) {
			end = len(calls)
		}
		g.Go(func() error {
			out, err := m.aggregatePage(gctx, provider, target, block, calls[start:end])
			if err != nil {
				return err
			}
			copy(raw[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([][]interface{}, len(calls))
	for i, c := range calls {
		vals, err := c.ABI.Unpack(c.Method, raw[i])
		if err != nil {
			return nil, fmt.Errorf("decode %s result for %s: %w", c.Method, c.Target.Hex(), err)
		}
		results[i] = vals
	}
	return results, nil
}

func (m *Multicall) aggregatePage(ctx context.Context, provider Provider, target common.Address, block inter.BlockSpec, page []Call) ([][]byte, error) {
	packed := make([]multicall.Call, len(page))
	for i, c := range page {
		data, err := c.ABI.Pack(c.Method, c.Args...)
		if err != nil {
			return nil, fmt.Errorf("encode %s call for %s: %w", c.Method, c.Target.Hex(), err)
		}
		packed[i] = multicall.Call{Target: c.Target, CallData: data}
	}

	input, err := multicall.ABI.Pack(multicall.Method, packed)
	if err != nil {
		return nil, fmt.Errorf("encode aggregate: %w", err)
	}

	out, err := provider.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input}, block.BigInt())
	if err != nil {
		return nil, inter.Upstream(err, "multicall at block %s", block)
	}

	vals, err := multicall.ABI.Unpack(multicall.Method, out)
	if err != nil {
		return nil, inter.Upstream(err, "decode aggregate response")
	}
	if len(vals) != 2 {
		return nil, inter.Upstream(fmt.Errorf("got %d outputs", len(vals)), "decode aggregate response")
	}
	returnData, ok := vals[1].([][]byte)
	if !ok || len(returnData) != len(page) {
		return nil, inter.Upstream(fmt.Errorf("expected %d return values", len(page)), "decode aggregate response")
	}
	return returnData, nil
}
