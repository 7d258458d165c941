package blockfinder

import (
	"context"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"go.uber.org/atomic"

	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/inter"
)

// DefaultRefreshInterval is how long a known chain head is trusted.
const DefaultRefreshInterval = 120 * time.Second

type height struct {
	number  atomic.Uint64
	fetched atomic.Time
}

// Heights memoises the head of every chain.
type Heights struct {
	providers evmcore.ProviderSource
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	heights map[string]*height
}

// NewHeights creates an empty head memo.
func NewHeights(providers evmcore.ProviderSource, interval time.Duration) *Heights {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Heights{
		providers: providers,
		interval:  interval,
		now:       time.Now,
		heights:   make(map[string]*height),
	}
}

// WithClock replaces the wall clock.
func (h *Heights) WithClock(now func() time.Time) *Heights {
	h.now = now
	return h
}

// Current returns the head of a network as needed to judge snapshot.
//
// A known head at or above the snapshot is returned as is. A lower known head
// is still trusted until it is older than the refresh interval; after that
// the provider is asked again.
func (h *Heights) Current(ctx context.Context, network string, snapshot idx.Block) (idx.Block, error) {
	e := h.entry(network)

	known := e.number.Load()
	if known != 0 {
		if uint64(snapshot) <= known {
			return idx.Block(known), nil
		}
		if h.now().Sub(e.fetched.Load()) < h.interval {
			return idx.Block(known), nil
		}
	}

	provider, err := h.providers.Get(network)
	if err != nil {
		return 0, inter.Upstream(err, "provider for network %s", network)
	}
	head, err := provider.BlockNumber(ctx)
	if err != nil {
		return 0, inter.Upstream(err, "block number on network %s", network)
	}
	e.number.Store(head)
	e.fetched.Store(h.now())
	return idx.Block(head), nil
}

// Resolve maps a snapshot beyond the current head to latest.
func (h *Heights) Resolve(ctx context.Context, network string, snapshot inter.BlockSpec) (inter.BlockSpec, error) {
	if snapshot.IsLatest() {
		return snapshot, nil
	}
	head, err := h.Current(ctx, network, snapshot.Number)
	if err != nil {
		return inter.Latest(), err
	}
	if head < snapshot.Number {
		return inter.Latest(), nil
	}
	return snapshot, nil
}

func (h *Heights) entry(network string) *height {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.heights[network]
	if !ok {
		e = new(height)
		h.heights[network] = e
	}
	return e
}
