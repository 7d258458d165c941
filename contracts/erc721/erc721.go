// Package erc721 holds the ERC-721 read ABI. balanceOf returns the number of
// tokens an owner holds.
package erc721

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const ContractABI = "[{\"inputs\":[{\"name\":\"owner\",\"type\":\"address\"}],\"name\":\"balanceOf\",\"outputs\":[{\"name\":\"\",\"type\":\"uint256\"}],\"stateMutability\":\"view\",\"type\":\"function\"}]"

const BalanceOf = "balanceOf"

var ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(err)
	}
	ABI = parsed
}
