package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-score/inter"
)

func request(snapshot inter.BlockSpec, space string) inter.Request {
	return inter.Request{
		Address: common.HexToAddress("0x91fd2c8d24767db4ece7069aa27832ffaf8590f3"),
		Network: "1",
		Strategies: []inter.StrategyConfig{{
			Name:    "erc20-balance-of",
			Network: "1",
			Params:  inter.Params{"address": "0x6B175474E89094C44Da98b954EedeAC495271d0F", "decimals": json.Number("18")},
		}},
		Snapshot: snapshot,
		Space:    space,
	}
}

type counter struct {
	calls  int
	result inter.Result
	err    error
}

func (c *counter) compute(ctx context.Context) (inter.Result, error) {
	c.calls++
	return c.result, c.err
}

func finalResult() inter.Result {
	return inter.Result{VP: 150.5, VPByStrategy: []float64{150.5}, VPState: inter.StateFinal}
}

func newCache(store Store) *Cache {
	log, _ := test.NewNullLogger()
	return New(store, DefaultExcludedSpaces, log, nil)
}

func TestCache_Idempotent(t *testing.T) {
	require := require.New(t)

	c := newCache(NewMemoryStore())
	fn := &counter{result: finalResult()}
	req := request(inter.BlockAt(1000), "ens.eth")

	first, fromCache, err := c.GetOrCompute(context.Background(), req, fn.compute)
	require.NoError(err)
	require.False(fromCache)

	second, fromCache, err := c.GetOrCompute(context.Background(), req, fn.compute)
	require.NoError(err)
	require.True(fromCache)
	require.Equal(first, second)
	require.Equal(1, fn.calls)
}

func TestCache_Bypass(t *testing.T) {
	tests := []struct {
		name  string
		store Store
		req   inter.Request
	}{
		{"latest snapshot", NewMemoryStore(), request(inter.Latest(), "ens.eth")},
		{"excluded space", NewMemoryStore(), request(inter.BlockAt(1000), "magicappstore.eth")},
		{"no store", nil, request(inter.BlockAt(1000), "ens.eth")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCache(tt.store)
			fn := &counter{result: finalResult()}

			for i := 0; i < 2; i++ {
				_, fromCache, err := c.GetOrCompute(context.Background(), tt.req, fn.compute)
				require.NoError(t, err)
				require.False(t, fromCache)
			}
			require.Equal(t, 2, fn.calls)

			if tt.store != nil {
				key, err := Key(tt.req)
				require.NoError(t, err)
				fields, err := tt.store.HGetAll(context.Background(), key)
				require.NoError(t, err)
				require.Empty(t, fields)
			}
		})
	}
}

func TestCache_PendingNotWritten(t *testing.T) {
	store := NewMemoryStore()
	c := newCache(store)
	fn := &counter{result: inter.Result{VP: 1, VPByStrategy: []float64{1}, VPState: inter.StatePending}}
	req := request(inter.BlockAt(1000), "ens.eth")

	_, _, err := c.GetOrCompute(context.Background(), req, fn.compute)
	require.NoError(t, err)
	_, fromCache, err := c.GetOrCompute(context.Background(), req, fn.compute)
	require.NoError(t, err)
	require.False(t, fromCache)
	require.Equal(t, 2, fn.calls)
}

func TestCache_ComputeError(t *testing.T) {
	c := newCache(NewMemoryStore())
	fn := &counter{err: inter.Upstream(errors.New("timeout"), "provider")}

	_, fromCache, err := c.GetOrCompute(context.Background(), request(inter.BlockAt(1000), "ens.eth"), fn.compute)
	require.Error(t, err)
	require.False(t, fromCache)
}

// brokenStore fails every operation.
type brokenStore struct{}

type brokenTx struct{}

func (brokenStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Multi() Tx    { return brokenTx{} }
func (brokenStore) Close() error { return nil }

func (brokenTx) HSet(key, field, value string) {}
func (brokenTx) Exec(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestCache_StoreFailuresAreSwallowed(t *testing.T) {
	c := newCache(brokenStore{})
	fn := &counter{result: finalResult()}

	res, fromCache, err := c.GetOrCompute(context.Background(), request(inter.BlockAt(1000), "ens.eth"), fn.compute)
	require.NoError(t, err)
	require.False(t, fromCache)
	require.Equal(t, finalResult(), res)
}

// TestFingerprint_Canonical checks that parameter key order does not change
// the cache key while parameter values do.
func TestFingerprint_Canonical(t *testing.T) {
	require := require.New(t)

	decode := func(raw string) inter.Request {
		var req inter.Request
		require.NoError(json.Unmarshal([]byte(raw), &req))
		return req.Normalize(8)
	}

	a := decode(`{"address":"0x91fd2c8d24767db4ece7069aa27832ffaf8590f3","network":"1","snapshot":1000,"space":"ens.eth",
		"strategies":[{"name":"erc20-balance-of","params":{"address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","decimals":18}}]}`)
	b := decode(`{"space":"ens.eth","snapshot":1000,"network":"1","address":"0x91FD2C8D24767DB4ECE7069AA27832FFAF8590F3",
		"strategies":[{"params":{"decimals":18,"address":"0x6B175474E89094C44Da98b954EedeAC495271d0F"},"name":"erc20-balance-of"}]}`)
	c := decode(`{"address":"0x91fd2c8d24767db4ece7069aa27832ffaf8590f3","network":"1","snapshot":1000,"space":"ens.eth",
		"strategies":[{"name":"erc20-balance-of","params":{"address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","decimals":6}}]}`)

	ka, err := Key(a)
	require.NoError(err)
	kb, err := Key(b)
	require.NoError(err)
	kc, err := Key(c)
	require.NoError(err)

	require.Equal(ka, kb)
	require.NotEqual(ka, kc)
	require.Len(ka, len(KeyPrefix)+64)
}

func TestStores(t *testing.T) {
	pebbleStore, err := OpenPebble(t.TempDir())
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"pebble": pebbleStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			fields, err := store.HGetAll(ctx, "vp:missing")
			require.NoError(err)
			require.Empty(fields)

			tx := store.Multi()
			tx.HSet("vp:a", "vp", "1.5")
			tx.HSet("vp:a", "vp_state", "final")
			require.NoError(tx.Exec(ctx))

			tx = store.Multi()
			tx.HSet("vp:a", "vp_by_strategy", "[1.5]")
			require.NoError(tx.Exec(ctx))

			fields, err = store.HGetAll(ctx, "vp:a")
			require.NoError(err)
			require.Equal(map[string]string{"vp": "1.5", "vp_state": "final", "vp_by_strategy": "[1.5]"}, fields)

			// buffered writes are invisible until Exec
			tx = store.Multi()
			tx.HSet("vp:b", "vp", "2")
			fields, err = store.HGetAll(ctx, "vp:b")
			require.NoError(err)
			require.Empty(fields)

			require.NoError(store.Close())
		})
	}
}
