// Package delegation describes the on-chain delegation registry used to
// resolve outbound delegations.
//
// Overview:
//
//	The registry stores one delegate per (delegator, bytes32 space id). The
//	empty id holds the base delegation that applies to every space; a
//	non-empty id holds a space-specific override.
//
// Only the read-only delegation(address,bytes32) view is used here.
package delegation

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ContractAddress is the registry deployment shared by every supported chain.
	ContractAddress = common.HexToAddress("0x469788fE6E9E9681C6ebF3bF78e7Fd26Fc015446")

	// ContractABI is the JSON ABI of the registry view we call.
	ContractABI string = "[{\"inputs\":[{\"internalType\":\"address\",\"name\":\"\",\"type\":\"address\"},{\"internalType\":\"bytes32\",\"name\":\"\",\"type\":\"bytes32\"}],\"name\":\"delegation\",\"outputs\":[{\"internalType\":\"address\",\"name\":\"\",\"type\":\"address\"}],\"stateMutability\":\"view\",\"type\":\"function\"}]"

	// ABI is ContractABI parsed once at init.
	ABI abi.ABI

	// EmptySpace is the bytes32 id of base delegations.
	EmptySpace [32]byte
)

// Method is the registry view returning the delegate of (delegator, id).
const Method = "delegation"

func init() {
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(err)
	}
	if _, exist := parsed.Methods[Method]; !exist {
		panic("unknown delegation registry method")
	}
	ABI = parsed
}

// SpaceID encodes a space name as a right-padded bytes32 string. Names that
// do not leave room for a terminating zero byte are rejected, matching the
// usual bytes32 string encoding.
func SpaceID(space string) ([32]byte, error) {
	var id [32]byte
	if len(space) > 31 {
		return id, fmt.Errorf("space id %q does not fit in bytes32", space)
	}
	copy(id[:], space)
	return id, nil
}
