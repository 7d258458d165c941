package integration

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-score/blockfinder"
	"github.com/rony4d/go-score/cache"
	"github.com/rony4d/go-score/delegation"
	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/metrics"
	"github.com/rony4d/go-score/networks"
	"github.com/rony4d/go-score/strategies"
	"github.com/rony4d/go-score/subgraph"
	"github.com/rony4d/go-score/vp"
)

// Settings is everything Assemble needs to build a runtime.
type Settings struct {
	ProviderURL     string
	ProviderTimeout time.Duration
	SubgraphTimeout time.Duration
	HeightRefresh   time.Duration
	Networks        networks.Table
	Blockfinder     blockfinder.Config

	MulticallPageSize  int
	DelegationPageSize int

	Service vp.Config

	CacheBackend  string
	CacheDir      string
	NoCacheSpaces []string

	// Dialer replaces the HTTP provider dialer when set.
	Dialer evmcore.Dialer
}

// Runtime owns the long-lived collaborators of a running scorer.
type Runtime struct {
	Providers  *evmcore.Providers
	Strategies *strategies.Registry
	Service    *vp.Service

	store cache.Store
	log   logrus.FieldLogger
}

// Assemble wires providers, index clients, resolvers, the result cache and the
// orchestrator together.
func Assemble(s Settings, log logrus.FieldLogger, m *metrics.Metrics) (*Runtime, error) {
	table := s.Networks
	if table == nil {
		table = networks.DefaultTable()
	}

	providers := evmcore.NewProviders(table, s.ProviderURL, s.ProviderTimeout, log.WithField("module", "providers"))
	if s.Dialer != nil {
		providers.WithDialer(s.Dialer)
	}
	index := subgraph.NewClient(s.SubgraphTimeout, log.WithField("module", "subgraph"))

	reconciler, err := blockfinder.NewReconciler(s.Blockfinder, providers, index, log.WithField("module", "blockfinder"), m)
	if err != nil {
		return nil, err
	}
	heights := blockfinder.NewHeights(providers, s.HeightRefresh)

	multicall := evmcore.NewMulticall(providers, table, s.MulticallPageSize)
	resolver := delegation.NewResolver(multicall, index, table, log.WithField("module", "delegation"))
	if s.DelegationPageSize > 0 {
		resolver.WithPageSize(s.DelegationPageSize)
	}

	store, err := openStore(s.CacheBackend, s.CacheDir)
	if err != nil {
		return nil, err
	}

	reg := strategies.Default()
	pipeline := vp.NewPipeline(reconciler, resolver, reg, multicall, log.WithField("module", "pipeline"), m)
	results := cache.New(store, s.NoCacheSpaces, log.WithField("module", "cache"), m)

	log.WithFields(logrus.Fields{
		"backend":    backendName(s.CacheBackend),
		"strategies": len(reg.Names()),
		"networks":   len(table),
	}).Info("Runtime assembled")

	return &Runtime{
		Providers:  providers,
		Strategies: reg,
		Service:    vp.NewService(s.Service, pipeline, results, heights, reg, log.WithField("module", "vp")),
		store:      store,
		log:        log,
	}, nil
}

// Close releases the providers and the cache store.
func (r *Runtime) Close() error {
	var result *multierror.Error
	r.Providers.Close()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close cache store: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func openStore(backend, dir string) (cache.Store, error) {
	switch backendName(backend) {
	case BackendMemory:
		return cache.NewMemoryStore(), nil
	case BackendPebble:
		if dir == "" {
			return nil, fmt.Errorf("pebble cache backend needs a directory")
		}
		db, err := cache.OpenPebble(filepath.Clean(dir))
		if err != nil {
			return nil, fmt.Errorf("open cache store: %w", err)
		}
		return db, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

func backendName(backend string) string {
	if backend == "" {
		return BackendMemory
	}
	return backend
}
