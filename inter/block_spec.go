// Package inter defines the value types shared by every stage of the voting
// power pipeline: block references, requests, delegation sets and results.
//
// Key concepts:
//   - BlockSpec: a concrete block height or the symbolic "latest" head
//   - SnapshotMap: one BlockSpec per chain id taking part in a request
//   - Request/Result: the public get_vp contract
//
// Usage:
//   spec := inter.BlockAt(1000)
//   if spec.IsLatest() { ... }
//   tag := spec.BigInt() // nil for latest, as go-ethereum expects

package inter

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// LatestTag is the wire spelling of the chain head.
const LatestTag = "latest"

// BlockSpec references a block either by number or as the moving chain head.
//
// The zero value is "latest". Any JSON value that is not a number decodes to
// latest, so callers never have to special-case malformed snapshots.
type BlockSpec struct {
	// Number is meaningful only when Fixed is true.
	Number idx.Block

	// Fixed distinguishes a pinned block from the chain head.
	Fixed bool
}

// Latest returns the symbolic chain head reference.
func Latest() BlockSpec {
	return BlockSpec{}
}

// BlockAt returns a reference to a fixed block height.
func BlockAt(n idx.Block) BlockSpec {
	return BlockSpec{Number: n, Fixed: true}
}

// IsLatest reports whether the spec tracks the chain head.
func (b BlockSpec) IsLatest() bool {
	return !b.Fixed
}

// BigInt converts the spec into go-ethereum's block argument convention,
// where nil selects the latest block.
func (b BlockSpec) BigInt() *big.Int {
	if !b.Fixed {
		return nil
	}
	return new(big.Int).SetUint64(uint64(b.Number))
}

// String renders the block number in decimal, or "latest".
func (b BlockSpec) String() string {
	if !b.Fixed {
		return LatestTag
	}
	return strconv.FormatUint(uint64(b.Number), 10)
}

// MarshalJSON writes a JSON number for fixed blocks and "latest" otherwise.
func (b BlockSpec) MarshalJSON() ([]byte, error) {
	if !b.Fixed {
		return json.Marshal(LatestTag)
	}
	return []byte(b.String()), nil
}

// UnmarshalJSON accepts a non-negative integer; everything else becomes latest.
func (b *BlockSpec) UnmarshalJSON(data []byte) error {
	*b = Latest()

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '"' || data[0] == 'n' {
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return nil
	}
	n, err := strconv.ParseUint(num.String(), 10, 64)
	if err != nil {
		return nil
	}
	*b = BlockAt(idx.Block(n))
	return nil
}

// SnapshotMap maps a chain id to the block used on that chain.
type SnapshotMap map[string]BlockSpec

// AllLatest builds a map that pins every chain to its head.
func AllLatest(chains []string) SnapshotMap {
	out := make(SnapshotMap, len(chains))
	for _, c := range chains {
		out[c] = Latest()
	}
	return out
}

// Copy returns an independent map.
func (m SnapshotMap) Copy() SnapshotMap {
	out := make(SnapshotMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
