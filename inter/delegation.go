package inter

import "github.com/ethereum/go-ethereum/common"

// Delegation is the resolved delegation state of one address on one chain
// within one space.
//
// Out is nil when the address keeps its own vote. In never contains the
// address itself.
type Delegation struct {
	Out *common.Address
	In  []common.Address
}

// Delegated reports whether the address handed its own vote to someone else.
func (d Delegation) Delegated() bool {
	return d.Out != nil
}

// DelegationRecord is one raw row of the delegation index. An empty Space
// marks a base (all spaces) delegation.
type DelegationRecord struct {
	Delegator string `json:"delegator"`
	Delegate  string `json:"delegate"`
	Space     string `json:"space"`
}

// IsBase reports whether the record applies to every space.
func (r DelegationRecord) IsBase() bool {
	return r.Space == ""
}
