package inter

import (
	"bytes"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// Params is the opaque, strategy-specific parameter object. Each strategy
// validates it against its own schema; the pipeline only carries it around.
type Params map[string]interface{}

// UnmarshalJSON keeps numbers as json.Number so re-encoding for the request
// fingerprint reproduces the caller's digits exactly.
func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*p = raw
	return nil
}

// StrategyConfig names one scoring strategy and its parameters.
type StrategyConfig struct {
	Name    string `json:"name"`
	Network string `json:"network,omitempty"`
	Params  Params `json:"params"`
}

// NetworkOr returns the strategy network, falling back to the request's home chain.
func (s StrategyConfig) NetworkOr(home string) string {
	if s.Network != "" {
		return s.Network
	}
	return home
}

// Request is the get_vp input.
type Request struct {
	Address    common.Address   `json:"address"`
	Network    string           `json:"network"`
	Strategies []StrategyConfig `json:"strategies"`
	Snapshot   BlockSpec        `json:"snapshot"`
	Space      string           `json:"space"`
	Delegation bool             `json:"delegation"`
}

// Networks lists every distinct chain id used by the request's strategies,
// in first-seen order.
func (r *Request) Networks() []string {
	seen := make(map[string]struct{}, len(r.Strategies))
	out := make([]string, 0, len(r.Strategies))
	for _, s := range r.Strategies {
		n := s.NetworkOr(r.Network)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Normalize fills in each strategy's network and caps the strategy list.
// A non-positive max leaves the list length untouched.
func (r Request) Normalize(max int) Request {
	strategies := r.Strategies
	if max > 0 && len(strategies) > max {
		strategies = strategies[:max]
	}

	out := make([]StrategyConfig, len(strategies))
	for i, s := range strategies {
		s.Network = s.NetworkOr(r.Network)
		if s.Params == nil {
			s.Params = Params{}
		}
		out[i] = s
	}
	r.Strategies = out
	return r
}

// ValidateRequest is the validate input.
type ValidateRequest struct {
	Validation string         `json:"validation"`
	Author     common.Address `json:"author"`
	Space      string         `json:"space"`
	Network    string         `json:"network"`
	Snapshot   BlockSpec      `json:"snapshot"`
	Params     Params         `json:"params"`
}
