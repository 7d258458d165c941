// This file maps the CLI context and an optional TOML file onto the config struct.

package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/go-multierror"
	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-score/blockfinder"
	"github.com/rony4d/go-score/integration"
	"github.com/rony4d/go-score/logging"
	"github.com/rony4d/go-score/networks"
	"github.com/rony4d/go-score/vp"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node    NodeConfig
	HTTP    HTTPConfig
	Logging LoggingConfig
	Service ServiceConfig
	Cache   CacheConfig
	Chains  ChainsConfig
}

type NodeConfig struct {
	DataDir string
	Name    string
}

type HTTPConfig struct {
	Addr        string
	Port        int
	CORSOrigins []string
	Timeout     time.Duration
	Metrics     bool
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

type ServiceConfig struct {
	Preset             string
	MaxStrategies      int
	DisabledNetworks   []string
	DisabledSpaces     []string
	NoCacheSpaces      []string
	MulticallPageSize  int
	DelegationPageSize int
}

type CacheConfig struct {
	// Backend is memory, pebble or none. Empty takes the preset's backend.
	Backend string
	// Dir holds the pebble store. Empty means <DataDir>/vpcache.
	Dir string
}

type ChainsConfig struct {
	ProviderURL     string
	ProviderTimeout time.Duration
	BlockfinderURL  string
	SubgraphTimeout time.Duration
	HeightRefresh   time.Duration

	// RPC and Subgraphs hold <chainId>=<url> overrides of the network table.
	RPC       []string
	Subgraphs []string
}

// tomlSettings keeps TOML keys identical to the Go field names.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		name := rt.String()
		if rt.Name() != "" && unicode.IsUpper(rune(rt.Name()[0])) {
			name = rt.Name()
		}
		return fmt.Errorf("field '%s' is not defined in %s", field, name)
	},
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

//	Default config function creates a default config object using the DefaultConfig function from defaults.go
//	This keeps this main config file clean and in sync with the defaults.go file

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: resolvePath(d.Node.DataDir),
			Name:    d.Node.Name,
		},
		HTTP: HTTPConfig{
			Addr:        d.HTTP.Addr,
			Port:        d.HTTP.Port,
			CORSOrigins: d.HTTP.CORSOrigins,
			Timeout:     d.HTTP.Timeout,
		},
		Logging: LoggingConfig{
			Verbosity: d.Logging.Verbosity,
			Format:    d.Logging.Format,
			Color:     d.Logging.Color,
		},
		Service: ServiceConfig{
			Preset:             d.Service.Preset,
			MaxStrategies:      d.Service.MaxStrategies,
			DisabledNetworks:   d.Service.DisabledNetworks,
			NoCacheSpaces:      d.Service.NoCacheSpaces,
			MulticallPageSize:  d.Service.MulticallPageSize,
			DelegationPageSize: d.Service.DelegationPageSize,
		},
		Chains: ChainsConfig{
			ProviderURL:     d.Chains.ProviderURL,
			ProviderTimeout: d.Chains.ProviderTimeout,
			BlockfinderURL:  d.Chains.BlockfinderURL,
			SubgraphTimeout: d.Chains.SubgraphTimeout,
			HeightRefresh:   d.Chains.HeightRefresh,
		},
	}
}

// MakeAllConfigs merges defaults, config-file values and CLI overrides into a
// single config struct, fills what the preset decides and validates the result.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyCLIOverrides(ctx, &cfg)

	if err := applyPreset(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.Cache.Backend == integration.BackendPebble {
		if err := ensureDir(cfg.Node.DataDir); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

func loadConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return err
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if ctx.GlobalIsSet("identity") {
		cfg.Node.Name = ctx.GlobalString("identity")
	}

	if ctx.GlobalIsSet("http.addr") {
		cfg.HTTP.Addr = ctx.GlobalString("http.addr")
	}
	if ctx.GlobalIsSet("http.port") {
		cfg.HTTP.Port = ctx.GlobalInt("http.port")
	}
	if ctx.GlobalIsSet("http.corsdomain") {
		cfg.HTTP.CORSOrigins = splitCSV(ctx.GlobalString("http.corsdomain"))
	}
	if ctx.GlobalIsSet("rpc.timeout") {
		cfg.HTTP.Timeout = ctx.GlobalDuration("rpc.timeout")
	}
	if ctx.GlobalBool("metrics") {
		cfg.HTTP.Metrics = true
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("log.sentry") {
		cfg.Logging.SentryDSN = ctx.GlobalString("log.sentry")
	}

	if ctx.GlobalIsSet("preset") {
		cfg.Service.Preset = ctx.GlobalString("preset")
	}
	if ctx.GlobalIsSet("cache.backend") {
		cfg.Cache.Backend = ctx.GlobalString("cache.backend")
	}
	if ctx.GlobalIsSet("cache.dir") {
		cfg.Cache.Dir = resolvePath(ctx.GlobalString("cache.dir"))
	}
	if ctx.GlobalIsSet("nocache.spaces") {
		cfg.Service.NoCacheSpaces = splitCSV(ctx.GlobalString("nocache.spaces"))
	}
	if ctx.GlobalIsSet("disabled.spaces") {
		cfg.Service.DisabledSpaces = splitCSV(ctx.GlobalString("disabled.spaces"))
	}
	if ctx.GlobalIsSet("disabled.networks") {
		cfg.Service.DisabledNetworks = splitCSV(ctx.GlobalString("disabled.networks"))
	}
	if ctx.GlobalIsSet("max.strategies") {
		cfg.Service.MaxStrategies = ctx.GlobalInt("max.strategies")
	}
	if ctx.GlobalIsSet("multicall.pagesize") {
		cfg.Service.MulticallPageSize = ctx.GlobalInt("multicall.pagesize")
	}
	if ctx.GlobalIsSet("delegation.pagesize") {
		cfg.Service.DelegationPageSize = ctx.GlobalInt("delegation.pagesize")
	}

	if ctx.GlobalIsSet("rpc.provider") {
		cfg.Chains.ProviderURL = strings.TrimRight(ctx.GlobalString("rpc.provider"), "/")
	}
	if ctx.GlobalIsSet("rpc.provider.timeout") {
		cfg.Chains.ProviderTimeout = ctx.GlobalDuration("rpc.provider.timeout")
	}
	if ctx.GlobalIsSet("rpc.override") {
		cfg.Chains.RPC = append(cfg.Chains.RPC, ctx.GlobalStringSlice("rpc.override")...)
	}
	if ctx.GlobalIsSet("blockfinder.url") {
		cfg.Chains.BlockfinderURL = ctx.GlobalString("blockfinder.url")
	}
	if ctx.GlobalIsSet("delegation.subgraph") {
		cfg.Chains.Subgraphs = append(cfg.Chains.Subgraphs, ctx.GlobalStringSlice("delegation.subgraph")...)
	}
	if ctx.GlobalIsSet("subgraph.timeout") {
		cfg.Chains.SubgraphTimeout = ctx.GlobalDuration("subgraph.timeout")
	}
	if ctx.GlobalIsSet("height.refresh") {
		cfg.Chains.HeightRefresh = ctx.GlobalDuration("height.refresh")
	}
}

// applyPreset fills the settings the operator left to the preset. An explicit
// cache backend wins over the preset's; metrics are on if either asks for them.
func applyPreset(cfg *Config) error {
	preset, err := integration.GetPresetByName(cfg.Service.Preset)
	if err != nil {
		return err
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = preset.CacheBackend
	}
	if preset.EnableMetrics {
		cfg.HTTP.Metrics = true
	}
	if cfg.Cache.Backend == integration.BackendPebble && cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(cfg.Node.DataDir, "vpcache")
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("http port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("negative request timeout %s", c.HTTP.Timeout))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		result = multierror.Append(result, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	if c.Service.MaxStrategies <= 0 {
		result = multierror.Append(result, fmt.Errorf("max strategies must be positive, got %d", c.Service.MaxStrategies))
	}
	switch c.Cache.Backend {
	case integration.BackendMemory, integration.BackendPebble, integration.BackendNone:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if err := checkURL(c.Chains.ProviderURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("provider url: %w", err))
	}
	if err := checkURL(c.Chains.BlockfinderURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("blockfinder url: %w", err))
	}
	for _, kv := range c.Chains.RPC {
		if _, u, err := splitOverride(kv); err != nil {
			result = multierror.Append(result, fmt.Errorf("rpc override: %w", err))
		} else if err := checkURL(u); err != nil {
			result = multierror.Append(result, fmt.Errorf("rpc override %q: %w", kv, err))
		}
	}
	for _, kv := range c.Chains.Subgraphs {
		if _, _, err := splitOverride(kv); err != nil {
			result = multierror.Append(result, fmt.Errorf("delegation subgraph: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Networks returns the default network table with the configured overrides.
func (c *Config) Networks() networks.Table {
	table := networks.DefaultTable()
	for _, kv := range c.Chains.RPC {
		if id, u, err := splitOverride(kv); err == nil {
			table = table.WithRPC(id, u)
		}
	}
	for _, kv := range c.Chains.Subgraphs {
		if id, u, err := splitOverride(kv); err == nil {
			table = table.WithSubgraph(id, u)
		}
	}
	return table
}

// Settings converts the config into the runtime assembly input.
func (c *Config) Settings() integration.Settings {
	return integration.Settings{
		ProviderURL:     c.Chains.ProviderURL,
		ProviderTimeout: c.Chains.ProviderTimeout,
		SubgraphTimeout: c.Chains.SubgraphTimeout,
		HeightRefresh:   c.Chains.HeightRefresh,
		Networks:        c.Networks(),
		Blockfinder: blockfinder.Config{
			URL:             c.Chains.BlockfinderURL,
			HeaderCacheSize: blockfinder.DefaultHeaderCacheSize,
		},
		MulticallPageSize:  c.Service.MulticallPageSize,
		DelegationPageSize: c.Service.DelegationPageSize,
		Service: vp.Config{
			MaxStrategies:    c.Service.MaxStrategies,
			DisabledNetworks: c.Service.DisabledNetworks,
			DisabledSpaces:   c.Service.DisabledSpaces,
		},
		CacheBackend:  c.Cache.Backend,
		CacheDir:      c.Cache.Dir,
		NoCacheSpaces: c.Service.NoCacheSpaces,
	}
}

// LoggingConfig converts the logging section for the logging package.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Verbosity: c.Logging.Verbosity,
		Format:    c.Logging.Format,
		Color:     c.Logging.Color,
		SentryDSN: c.Logging.SentryDSN,
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// splitOverride parses "<chainId>=<url>". The url may be empty.
func splitOverride(kv string) (string, string, error) {
	id, u, ok := strings.Cut(kv, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return "", "", fmt.Errorf("malformed override %q, want <chainId>=<url>", kv)
	}
	return id, strings.TrimSpace(u), nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	return nil
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
