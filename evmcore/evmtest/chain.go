// Package evmtest provides an in-memory chain that answers the JSON-RPC calls
// the scorer makes. Contract reads are routed through the aggregate contract
// exactly as on a real chain, so tests exercise the real encoding path.
package evmtest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rony4d/go-score/contracts/multicall"
	"github.com/rony4d/go-score/evmcore"
)

// ErrUnknownBlock is returned for headers that were never registered.
var ErrUnknownBlock = errors.New("unknown block")

// Handler answers one inner call of an aggregate batch.
type Handler func(target common.Address, args []interface{}, block *big.Int) ([]interface{}, error)

type route struct {
	method abi.Method
	fn     Handler
}

// Chain is a fake Provider.
type Chain struct {
	mu sync.Mutex

	head    uint64
	times   map[uint64]uint64
	routes  map[[4]byte]route
	failErr error

	aggregates   int
	headerReads  int
	headReads    int
	lastBlockArg *big.Int
}

// NewChain returns a chain whose head is at the given height.
func NewChain(head uint64) *Chain {
	return &Chain{
		head:   head,
		times:  make(map[uint64]uint64),
		routes: make(map[[4]byte]route),
	}
}

// Handle registers the responder for a contract method.
func (c *Chain) Handle(contract *abi.ABI, method string, fn Handler) {
	m, ok := contract.Methods[method]
	if !ok {
		panic("evmtest: unknown method " + method)
	}
	var id [4]byte
	copy(id[:], m.ID)

	c.mu.Lock()
	c.routes[id] = route{method: m, fn: fn}
	c.mu.Unlock()
}

// SetHead moves the chain head.
func (c *Chain) SetHead(head uint64) {
	c.mu.Lock()
	c.head = head
	c.mu.Unlock()
}

// SetHeader registers the timestamp of a block.
func (c *Chain) SetHeader(number, time uint64) {
	c.mu.Lock()
	c.times[number] = time
	c.mu.Unlock()
}

// FailWith makes every subsequent RPC call fail.
func (c *Chain) FailWith(err error) {
	c.mu.Lock()
	c.failErr = err
	c.mu.Unlock()
}

// Aggregates returns how many aggregate calls were served.
func (c *Chain) Aggregates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregates
}

// HeaderReads returns how many headers were requested.
func (c *Chain) HeaderReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headerReads
}

// HeadReads returns how many times the head height was requested.
func (c *Chain) HeadReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headReads
}

// LastBlockArg returns the block argument of the latest contract call.
func (c *Chain) LastBlockArg() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBlockArg
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return 0, c.failErr
	}
	c.headReads++
	return c.head, nil
}

func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return nil, c.failErr
	}
	c.headerReads++

	n := c.head
	if number != nil {
		n = number.Uint64()
	}
	ts, ok := c.times[n]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownBlock, n)
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: ts}, nil
}

func (c *Chain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	if c.failErr != nil {
		err := c.failErr
		c.mu.Unlock()
		return nil, err
	}
	c.aggregates++
	c.lastBlockArg = blockNumber
	routes := c.routes
	head := c.head
	c.mu.Unlock()

	aggregate := multicall.ABI.Methods[multicall.Method]
	if len(call.Data) < 4 || !reflect.DeepEqual(call.Data[:4], aggregate.ID) {
		return nil, errors.New("evmtest: only aggregate calls are supported")
	}
	args, err := aggregate.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	batch := reflect.ValueOf(args[0])
	returnData := make([][]byte, batch.Len())
	for i := 0; i < batch.Len(); i++ {
		target := batch.Index(i).Field(0).Interface().(common.Address)
		data := batch.Index(i).Field(1).Interface().([]byte)

		var id [4]byte
		copy(id[:], data[:4])
		r, ok := routes[id]
		if !ok {
			return nil, fmt.Errorf("evmtest: no handler for selector %x", id)
		}
		in, err := r.method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		out, err := r.fn(target, in, blockNumber)
		if err != nil {
			return nil, err
		}
		if returnData[i], err = r.method.Outputs.Pack(out...); err != nil {
			return nil, err
		}
	}

	height := new(big.Int).SetUint64(head)
	if blockNumber != nil {
		height = blockNumber
	}
	return aggregate.Outputs.Pack(height, returnData)
}

// Source serves fixed providers by chain id.
type Source map[string]*Chain

var (
	_ evmcore.ProviderSource = Source(nil)
	_ evmcore.Provider       = (*Chain)(nil)
)

// Get implements evmcore.ProviderSource.
func (s Source) Get(network string) (evmcore.Provider, error) {
	c, ok := s[network]
	if !ok {
		return nil, fmt.Errorf("evmtest: no chain %s", network)
	}
	return c, nil
}
