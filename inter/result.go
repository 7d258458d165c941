package inter

// VPState tells whether a result is pinned to a fixed block.
type VPState string

const (
	// StateFinal results were measured at a fixed historical block and may be cached forever.
	StateFinal VPState = "final"
	// StatePending results were measured at the moving chain head.
	StatePending VPState = "pending"
)

// StateFor derives the result state from the request's home-chain snapshot.
func StateFor(snapshot BlockSpec) VPState {
	if snapshot.IsLatest() {
		return StatePending
	}
	return StateFinal
}

// Result is the voting power of one address.
//
// VP always equals the left-to-right sum of VPByStrategy, whose entries line up
// with the request's strategies.
type Result struct {
	VP           float64   `json:"vp"`
	VPByStrategy []float64 `json:"vp_by_strategy"`
	VPState      VPState   `json:"vp_state"`
}

// Sum adds scores in slice order.
func Sum(scores []float64) float64 {
	var total float64
	for _, s := range scores {
		total += s
	}
	return total
}
