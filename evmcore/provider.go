// Package evmcore provides the adapters between the scoring pipeline and the
// EVM chains it reads from.
//
// Key concepts:
//   - Provider: the minimal JSON-RPC surface the pipeline needs (head height,
//     headers, eth_call)
//   - Providers: a process-scoped registry with one long-lived client per
//     chain id, dialled lazily on first use and never torn down while the
//     process runs
//   - Multicall: the batched read primitive built on Provider.CallContract
//
// Usage:
//   providers := evmcore.NewProviders(table, "https://rpc.snapshot.org", 25*time.Second, log)
//   p, err := providers.Get("1")
//   head, err := p.BlockNumber(ctx)

package evmcore

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-score/networks"
)

// DefaultProviderTimeout bounds every JSON-RPC round trip to a chain.
const DefaultProviderTimeout = 25 * time.Second

// Provider is the subset of ethclient.Client used by the pipeline.
type Provider interface {
	// BlockNumber returns the most recent block height.
	BlockNumber(ctx context.Context) (uint64, error)

	// HeaderByNumber returns a block header; nil selects the latest header.
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// CallContract executes a read-only call at the given block; nil selects latest.
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ProviderSource hands out the provider of a chain.
type ProviderSource interface {
	Get(network string) (Provider, error)
}

// Dialer opens a provider for an RPC endpoint.
type Dialer func(url string, timeout time.Duration) (Provider, error)

// DialHTTP connects an ethclient over HTTP with a bounded request timeout.
// Gzip responses are negotiated by the HTTP transport.
func DialHTTP(url string, timeout time.Duration) (Provider, error) {
	c, err := rpc.DialHTTPWithClient(url, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(c), nil
}

// Providers is the per-process provider registry.
type Providers struct {
	mu      sync.Mutex
	clients map[string]Provider

	table   networks.Table
	baseURL string
	timeout time.Duration
	dial    Dialer
	log     logrus.FieldLogger
}

// NewProviders creates an empty registry. baseURL is used for chains without
// an explicit RPC entry in the table.
func NewProviders(table networks.Table, baseURL string, timeout time.Duration, log logrus.FieldLogger) *Providers {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Providers{
		clients: make(map[string]Provider),
		table:   table,
		baseURL: baseURL,
		timeout: timeout,
		dial:    DialHTTP,
		log:     log,
	}
}

// WithDialer swaps the connection factory; tests use it to inject fakes.
func (p *Providers) WithDialer(d Dialer) *Providers {
	p.dial = d
	return p
}

// Get returns the provider for a chain, dialling it on first use.
func (p *Providers) Get(network string) (Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[network]; ok {
		return c, nil
	}

	url := p.table.Get(network).ProviderURL(p.baseURL)
	c, err := p.dial(url, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("dial provider for network %s: %w", network, err)
	}
	p.log.WithField("network", network).Debug("Provider created")
	p.clients[network] = c
	return c, nil
}

// Set registers a ready-made provider for a chain.
func (p *Providers) Set(network string, c Provider) {
	p.mu.Lock()
	p.clients[network] = c
	p.mu.Unlock()
}

// Close releases every client that supports it. It is only called on shutdown.
func (p *Providers) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for network, c := range p.clients {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(p.clients, network)
	}
}
