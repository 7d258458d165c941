package vp

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-score/cache"
	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/networks"
	"github.com/rony4d/go-score/strategies"
	"github.com/rony4d/go-score/validations"
)

// DefaultMaxStrategies caps the strategies of one request.
const DefaultMaxStrategies = 8

// DefaultDisabledNetworks are refused outright.
var DefaultDisabledNetworks = []string{networks.DisabledLens}

// Config holds the request screening settings.
type Config struct {
	MaxStrategies    int
	DisabledNetworks []string
	DisabledSpaces   []string
}

// DefaultConfig returns the screening used by the public service.
func DefaultConfig() Config {
	return Config{
		MaxStrategies:    DefaultMaxStrategies,
		DisabledNetworks: DefaultDisabledNetworks,
	}
}

// HeightResolver turns snapshots beyond the chain head into latest.
type HeightResolver interface {
	Resolve(ctx context.Context, network string, snapshot inter.BlockSpec) (inter.BlockSpec, error)
}

// Service implements get_vp and validate.
type Service struct {
	cfg         Config
	pipeline    *Pipeline
	cache       *cache.Cache
	heights     HeightResolver
	strategies  *strategies.Registry
	validations *validations.Registry
	log         logrus.FieldLogger

	disabledNetworks map[string]struct{}
	disabledSpaces   map[string]struct{}
}

// NewService assembles the public entry points. The "basic" validation is
// registered against the service itself.
func NewService(cfg Config, pipeline *Pipeline, c *cache.Cache, heights HeightResolver, reg *strategies.Registry, log logrus.FieldLogger) *Service {
	if cfg.MaxStrategies <= 0 {
		cfg.MaxStrategies = DefaultMaxStrategies
	}
	s := &Service{
		cfg:              cfg,
		pipeline:         pipeline,
		cache:            c,
		heights:          heights,
		strategies:       reg,
		validations:      validations.NewRegistry(),
		log:              log,
		disabledNetworks: toSet(cfg.DisabledNetworks),
		disabledSpaces:   toSet(cfg.DisabledSpaces),
	}
	s.validations.Register("basic", validations.Basic{Scorer: s, MaxStrategies: cfg.MaxStrategies})
	return s
}

// Validations exposes the validation registry for additional plugins.
func (s *Service) Validations() *validations.Registry {
	return s.validations
}

// GetVp returns the voting power for req and whether it came from the cache.
//
// Unknown strategies fail with NotFound and disabled networks or spaces with
// RejectedInput, both before any I/O. A snapshot beyond the home chain's
// head is computed as latest.
func (s *Service) GetVp(ctx context.Context, req inter.Request) (inter.Result, bool, error) {
	req, err := s.screen(req)
	if err != nil {
		return inter.Result{}, false, err
	}

	req.Snapshot, err = s.heights.Resolve(ctx, req.Network, req.Snapshot)
	if err != nil {
		return inter.Result{}, false, err
	}

	log := s.log.WithFields(logrus.Fields{
		"address":  req.Address.Hex(),
		"network":  req.Network,
		"space":    req.Space,
		"snapshot": req.Snapshot,
	})

	res, fromCache, err := s.cache.GetOrCompute(ctx, req, func(ctx context.Context) (inter.Result, error) {
		return s.pipeline.Run(ctx, req)
	})
	if err != nil {
		log.WithError(err).Warn("Voting power failed")
		return inter.Result{}, false, err
	}
	log.WithFields(logrus.Fields{"vp": res.VP, "cache": fromCache}).Debug("Voting power served")
	return res, fromCache, nil
}

// Score computes a request without the cache. Like GetVp, a snapshot beyond
// the home chain's head is computed as latest.
func (s *Service) Score(ctx context.Context, req inter.Request) (inter.Result, error) {
	req, err := s.screen(req)
	if err != nil {
		return inter.Result{}, err
	}
	req.Snapshot, err = s.heights.Resolve(ctx, req.Network, req.Snapshot)
	if err != nil {
		return inter.Result{}, err
	}
	return s.pipeline.Run(ctx, req)
}

// Validate runs the named validation.
func (s *Service) Validate(ctx context.Context, req inter.ValidateRequest) (bool, error) {
	return s.validations.Run(ctx, req)
}

func (s *Service) screen(req inter.Request) (inter.Request, error) {
	req = req.Normalize(s.cfg.MaxStrategies)
	if err := s.strategies.CheckAll(req.Strategies); err != nil {
		return req, err
	}
	if _, ok := s.disabledNetworks[req.Network]; ok {
		return req, inter.Rejected("something wrong with the strategies")
	}
	if _, ok := s.disabledSpaces[req.Space]; ok {
		return req, inter.Rejected("something wrong with the strategies")
	}
	return req, nil
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}
