// Package multicall holds the ABI of the aggregate contract used to batch
// read-only calls into a single eth_call.
package multicall

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractABI describes aggregate((address,bytes)[]) returns (uint256, bytes[]).
const ContractABI = "[{\"inputs\":[{\"components\":[{\"internalType\":\"address\",\"name\":\"target\",\"type\":\"address\"},{\"internalType\":\"bytes\",\"name\":\"callData\",\"type\":\"bytes\"}],\"internalType\":\"struct Multicall.Call[]\",\"name\":\"calls\",\"type\":\"tuple[]\"}],\"name\":\"aggregate\",\"outputs\":[{\"internalType\":\"uint256\",\"name\":\"blockNumber\",\"type\":\"uint256\"},{\"internalType\":\"bytes[]\",\"name\":\"returnData\",\"type\":\"bytes[]\"}],\"stateMutability\":\"view\",\"type\":\"function\"}]"

// Method is the batching entry point.
const Method = "aggregate"

// ABI is ContractABI parsed once at init.
var ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(err)
	}
	ABI = parsed
}

// Call is the Go shape of the (address target, bytes callData) tuple.
type Call struct {
	Target   common.Address
	CallData []byte
}
