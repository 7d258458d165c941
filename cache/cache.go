// Package cache memoises final voting power results.
//
// Results are stored under "vp:<fingerprint>" as three independent fields
// (vp, vp_by_strategy, vp_state), written once in a single transaction. A
// result measured at "latest" is never read from or written to the store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/metrics"
)

// KeyPrefix namespaces result keys in the store.
const KeyPrefix = "vp:"

const (
	fieldVP           = "vp"
	fieldVPByStrategy = "vp_by_strategy"
	fieldVPState      = "vp_state"
)

// DefaultExcludedSpaces never use the cache.
var DefaultExcludedSpaces = []string{
	"magicappstore.eth",
	"moonbeam-foundation.eth",
}

// Fingerprint hashes the canonical JSON encoding of a request. Parameter
// objects are encoded with sorted keys at every depth, so the key order the
// caller used does not matter.
func Fingerprint(req inter.Request) (hash.Hash, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return hash.Hash{}, fmt.Errorf("encode request: %w", err)
	}
	return hash.Hash(sha256.Sum256(raw)), nil
}

// Key returns the store key of a request.
func Key(req inter.Request) (string, error) {
	h, err := Fingerprint(req)
	if err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(h.Bytes()), nil
}

// ComputeFn produces a result on a cache miss.
type ComputeFn func(ctx context.Context) (inter.Result, error)

// Cache sits in front of the pipeline.
type Cache struct {
	store    Store
	excluded map[string]struct{}
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// New creates a cache. A nil store disables caching.
func New(store Store, excluded []string, log logrus.FieldLogger, m *metrics.Metrics) *Cache {
	ex := make(map[string]struct{}, len(excluded))
	for _, s := range excluded {
		ex[s] = struct{}{}
	}
	return &Cache{
		store:    store,
		excluded: ex,
		log:      log,
		metrics:  m,
	}
}

// Eligible reports whether a request may be served from or written to the store.
func (c *Cache) Eligible(req inter.Request) bool {
	if c.store == nil || req.Snapshot.IsLatest() {
		return false
	}
	_, excluded := c.excluded[req.Space]
	return !excluded
}

// GetOrCompute returns the cached result for req or runs compute.
//
// Returns:
//   - the result
//   - true when the result came from the store
//   - compute's error; store failures never surface
func (c *Cache) GetOrCompute(ctx context.Context, req inter.Request, compute ComputeFn) (inter.Result, bool, error) {
	if !c.Eligible(req) {
		c.metrics.VPCache(metrics.OutcomeBypass)
		res, err := compute(ctx)
		return res, false, err
	}

	key, err := Key(req)
	if err != nil {
		c.log.WithError(err).Warn("Failed to fingerprint request")
		res, err := compute(ctx)
		return res, false, err
	}
	log := c.log.WithFields(logrus.Fields{"key": key, "space": req.Space})

	fields, err := c.store.HGetAll(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Cache read failed")
	} else if res, ok := decodeResult(fields); ok {
		c.metrics.VPCache(metrics.OutcomeHit)
		return res, true, nil
	}
	c.metrics.VPCache(metrics.OutcomeMiss)

	res, err := compute(ctx)
	if err != nil {
		return inter.Result{}, false, err
	}
	if res.VPState == inter.StateFinal {
		if err := c.write(ctx, key, res); err != nil {
			c.metrics.CacheWriteError()
			log.WithError(err).Warn("Cache write failed")
		}
	}
	return res, false, nil
}

func (c *Cache) write(ctx context.Context, key string, res inter.Result) error {
	byStrategy, err := json.Marshal(res.VPByStrategy)
	if err != nil {
		return err
	}
	tx := c.store.Multi()
	tx.HSet(key, fieldVP, strconv.FormatFloat(res.VP, 'g', -1, 64))
	tx.HSet(key, fieldVPByStrategy, string(byStrategy))
	tx.HSet(key, fieldVPState, string(res.VPState))
	return tx.Exec(ctx)
}

// decodeResult rebuilds a result; entries without a state are treated as absent.
func decodeResult(fields map[string]string) (inter.Result, bool) {
	state := fields[fieldVPState]
	if state == "" {
		return inter.Result{}, false
	}
	vp, err := strconv.ParseFloat(fields[fieldVP], 64)
	if err != nil {
		return inter.Result{}, false
	}
	var byStrategy []float64
	if err := json.Unmarshal([]byte(fields[fieldVPByStrategy]), &byStrategy); err != nil {
		return inter.Result{}, false
	}
	return inter.Result{
		VP:           vp,
		VPByStrategy: byStrategy,
		VPState:      inter.VPState(state),
	}, true
}
