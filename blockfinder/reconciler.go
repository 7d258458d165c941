// Package blockfinder maps a block on one chain to the equivalent blocks on
// the other chains taking part in a request, and tracks the current head of
// every chain.
//
// Key concepts:
//   - Reconciler: translates (home chain, block) into a SnapshotMap using the
//     home block's timestamp and an external block index. Answers are kept in
//     a cache that is wiped as a whole at every top of the hour.
//   - Heights: a per-network memo of the chain head used to detect snapshots
//     that point into the future.
//
// Usage:
//   r, err := blockfinder.NewReconciler(blockfinder.DefaultConfig(), providers, client, log, m)
//   snapshots, err := r.Resolve(ctx, "1", inter.BlockAt(15000000), []string{"1", "137"})
package blockfinder

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/metrics"
	"github.com/rony4d/go-score/subgraph"
)

const (
	// DefaultURL is the public block index.
	DefaultURL = "https://blockfinder.snapshot.org"

	// DefaultHeaderCacheSize bounds the memo of historical header timestamps.
	DefaultHeaderCacheSize = 4096

	rotation = time.Hour
)

// Config holds the reconciler settings.
type Config struct {
	URL             string
	HeaderCacheSize int
}

// DefaultConfig returns the settings used by the public service.
func DefaultConfig() Config {
	return Config{
		URL:             DefaultURL,
		HeaderCacheSize: DefaultHeaderCacheSize,
	}
}

type headerKey struct {
	network string
	number  idx.Block
}

// Reconciler resolves cross-chain snapshots.
type Reconciler struct {
	cfg       Config
	providers evmcore.ProviderSource
	index     subgraph.Querier
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu         sync.Mutex
	generation map[string]inter.SnapshotMap
	expiry     time.Time

	headerTimes *lru.Cache[headerKey, uint64]
}

// NewReconciler creates a reconciler with an empty cache.
func NewReconciler(cfg Config, providers evmcore.ProviderSource, index subgraph.Querier, log logrus.FieldLogger, m *metrics.Metrics) (*Reconciler, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HeaderCacheSize <= 0 {
		cfg.HeaderCacheSize = DefaultHeaderCacheSize
	}
	headerTimes, err := lru.New[headerKey, uint64](cfg.HeaderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create header cache: %w", err)
	}
	return &Reconciler{
		cfg:         cfg,
		providers:   providers,
		index:       index,
		log:         log,
		metrics:     m,
		now:         time.Now,
		generation:  make(map[string]inter.SnapshotMap),
		headerTimes: headerTimes,
	}, nil
}

// WithClock replaces the wall clock; tests use it to cross rotation boundaries.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Resolve returns the block to use on every chain of a request.
//
// Parameters:
//   - home: chain id the snapshot refers to
//   - snapshot: block on the home chain, or latest
//   - chains: every chain id referenced by the request's strategies
//
// Returns:
//   - a map with one entry per chain; the home entry is the snapshot itself
//   - an UpstreamTransport error when the home header or the block index
//     cannot be read, or when the index has no answer for a chain
func (r *Reconciler) Resolve(ctx context.Context, home string, snapshot inter.BlockSpec, chains []string) (inter.SnapshotMap, error) {
	out := inter.AllLatest(chains)
	if snapshot.IsLatest() {
		return out, nil
	}

	key := cacheKey(home, snapshot, chains)
	if cached, ok := r.lookup(key); ok {
		r.metrics.ReconcilerCache(true)
		return cached.Copy(), nil
	}
	r.metrics.ReconcilerCache(false)

	out[home] = snapshot
	others := make([]string, 0, len(chains))
	for _, c := range chains {
		if c != home {
			others = append(others, c)
		}
	}
	if len(others) == 0 {
		return out, nil
	}

	ts, err := r.headerTime(ctx, home, snapshot)
	if err != nil {
		return nil, err
	}
	found, err := r.findBlocks(ctx, ts, others)
	if err != nil {
		return nil, err
	}
	for _, c := range others {
		n, ok := found[c]
		if !ok {
			return nil, inter.Upstream(fmt.Errorf("no block for network %s at timestamp %d", c, ts), "block finder")
		}
		out[c] = inter.BlockAt(n)
	}

	r.store(key, out.Copy())
	r.log.WithFields(logrus.Fields{
		"network":  home,
		"snapshot": snapshot,
		"chains":   len(chains),
	}).Debug("Snapshots resolved")
	return out, nil
}

// lookup returns a cached answer from the current generation, starting a new
// generation first if the previous one has expired.
func (r *Reconciler) lookup(key string) (inter.SnapshotMap, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rotateLocked()
	m, ok := r.generation[key]
	return m, ok
}

func (r *Reconciler) store(key string, m inter.SnapshotMap) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rotateLocked()
	r.generation[key] = m
}

func (r *Reconciler) rotateLocked() {
	now := r.now()
	if now.Before(r.expiry) {
		return
	}
	r.generation = make(map[string]inter.SnapshotMap)
	r.expiry = now.Truncate(rotation).Add(rotation)
}

func (r *Reconciler) headerTime(ctx context.Context, network string, snapshot inter.BlockSpec) (uint64, error) {
	key := headerKey{network: network, number: snapshot.Number}
	if ts, ok := r.headerTimes.Get(key); ok {
		return ts, nil
	}

	provider, err := r.providers.Get(network)
	if err != nil {
		return 0, inter.Upstream(err, "provider for network %s", network)
	}
	header, err := provider.HeaderByNumber(ctx, snapshot.BigInt())
	if err != nil {
		return 0, inter.Upstream(err, "header %s on network %s", snapshot, network)
	}
	r.headerTimes.Add(key, header.Time)
	return header.Time, nil
}

type foundBlock struct {
	Network string      `json:"network"`
	Number  json.Number `json:"number"`
}

func (r *Reconciler) findBlocks(ctx context.Context, ts uint64, networks []string) (map[string]idx.Block, error) {
	q := subgraph.Query{
		Entity: "blocks",
		Args: subgraph.Args{
			{Name: "where", Value: subgraph.Args{
				{Name: "ts", Value: ts},
				{Name: "network_in", Value: networks},
			}},
		},
		Fields: []string{"network", "number"},
	}

	var data struct {
		Blocks []foundBlock `json:"blocks"`
	}
	if err := r.index.Request(ctx, r.cfg.URL, q, &data); err != nil {
		return nil, err
	}

	out := make(map[string]idx.Block, len(data.Blocks))
	for _, b := range data.Blocks {
		n, err := strconv.ParseUint(b.Number.String(), 10, 64)
		if err != nil {
			return nil, inter.Upstream(err, "block finder number %q for network %s", b.Number, b.Network)
		}
		out[b.Network] = idx.Block(n)
	}
	return out, nil
}

// cacheKey is insensitive to the order the request lists its chains in.
func cacheKey(home string, snapshot inter.BlockSpec, chains []string) string {
	sorted := append([]string(nil), chains...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s-%s-%s", home, snapshot, strings.Join(sorted, "-"))
}
