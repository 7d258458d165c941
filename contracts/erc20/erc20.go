// Package erc20 holds the ERC-20 read ABI used by balance strategies.
package erc20

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ContractABI covers balanceOf(address) returns (uint256).
const ContractABI = "[{\"constant\":true,\"inputs\":[{\"name\":\"account\",\"type\":\"address\"}],\"name\":\"balanceOf\",\"outputs\":[{\"name\":\"\",\"type\":\"uint256\"}],\"stateMutability\":\"view\",\"type\":\"function\"}]"

// BalanceOf is the only method the scorer needs.
const BalanceOf = "balanceOf"

// ABI is ContractABI parsed once at init.
var ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(err)
	}
	ABI = parsed
}
