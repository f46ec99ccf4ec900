package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// Config is the single process-wide configuration record, assembled once at
// pipeline/scheduler start from environment variables plus runtime
// overrides, then passed explicitly into every component. No package-level
// mutable state reads it later (§9).
type Config struct {
	DatabaseURL     string            `koanf:"database_url" mapstructure:"database_url"`
	Fetch           bool              `koanf:"fetch" mapstructure:"fetch"`
	NoCache         bool              `koanf:"no_cache" mapstructure:"no_cache"`
	Test            bool              `koanf:"test" mapstructure:"test"`
	FrequencyHours  int               `koanf:"frequency" mapstructure:"frequency"`
	EnableScheduler bool              `koanf:"enable_scheduler" mapstructure:"enable_scheduler"`
	Debug           bool              `koanf:"debug" mapstructure:"debug"`
	Load            bool              `koanf:"load" mapstructure:"load"`
	DataRoot        string            `koanf:"data_root" mapstructure:"data_root"`
	Sources         map[string]string `koanf:"sources" mapstructure:"sources"`
}

// DefaultConfig returns the configuration defaults listed in §6.
func DefaultConfig() Config {
	return Config{
		Fetch:           true,
		NoCache:         false,
		Test:            false,
		FrequencyHours:  24,
		EnableScheduler: true,
		Debug:           false,
		Load:            false,
		DataRoot:        "/data",
		Sources:         map[string]string{},
	}
}

// Validate enforces the invariants a Pipeline/Scheduler relies on before
// using a Config.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("core: database_url is required")
	}
	if c.FrequencyHours <= 0 {
		return fmt.Errorf("core: frequency must be a positive number of hours")
	}
	if strings.TrimSpace(c.DataRoot) == "" {
		return fmt.Errorf("core: data_root is required")
	}
	return nil
}

// FrequencyDuration converts a config's hour count into the Duration the
// Scheduler's ticker actually takes, so no other package reimplements the
// hours-to-duration conversion.
func FrequencyDuration(hours int) time.Duration {
	return time.Duration(hours) * time.Hour
}

// RawConfigLoader supplies the raw config map a ConfigProvider resolves
// against defaults; implementations typically read environment variables.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// EnvRawConfigLoader reads CHAI's environment variables per §6.
type EnvRawConfigLoader struct {
	// Lookup defaults to os.LookupEnv; overridable for tests.
	Lookup func(key string) (string, bool)
	// Environ defaults to os.Environ; overridable for tests. Used to
	// discover the SOURCES_<PACKAGE_MANAGER> variables, whose names are
	// not known ahead of time.
	Environ func() []string
}

// NewEnvRawConfigLoader returns a loader backed by the real process
// environment.
func NewEnvRawConfigLoader() *EnvRawConfigLoader {
	return &EnvRawConfigLoader{Lookup: os.LookupEnv, Environ: os.Environ}
}

// LoadRaw reads CHAI_DATABASE_URL, FETCH, NO_CACHE, TEST, FREQUENCY,
// ENABLE_SCHEDULER, DEBUG, LOAD, DATA_DIR, and any SOURCES_<NAME> variable
// into the raw map cfgx.Build resolves against defaults. A variable that is
// unset is simply omitted rather than written as a zero value, so
// cfgx.WithDefaults supplies it instead.
func (l *EnvRawConfigLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}

	raw := map[string]any{}

	if v, ok := lookup("CHAI_DATABASE_URL"); ok {
		raw["database_url"] = v
	}
	if v, ok := lookup("DATA_DIR"); ok {
		raw["data_root"] = v
	}
	if v, ok := lookup("FREQUENCY"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("core: FREQUENCY must be an integer number of hours: %w", err)
		}
		raw["frequency"] = n
	}

	boolVars := map[string]string{
		"FETCH":            "fetch",
		"NO_CACHE":         "no_cache",
		"TEST":             "test",
		"ENABLE_SCHEDULER": "enable_scheduler",
		"DEBUG":            "debug",
		"LOAD":             "load",
	}
	for env, key := range boolVars {
		v, ok := lookup(env)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("core: %s must be a boolean: %w", env, err)
		}
		raw[key] = b
	}

	sources := map[string]any{}
	const sourcesPrefix = "SOURCES_"
	for _, entry := range environ() {
		name, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(name, sourcesPrefix) {
			continue
		}
		pm := strings.ToLower(strings.TrimPrefix(name, sourcesPrefix))
		sources[pm] = value
	}
	if len(sources) > 0 {
		raw["sources"] = sources
	}

	return raw, nil
}

// ConfigProvider resolves a Config from defaults plus a raw source.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// CfgxConfigProvider loads raw values via a RawConfigLoader and builds a
// validated Config through cfgx, mirroring the teacher's
// core/options.go CfgxConfigProvider.
type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil || p.Loader == nil {
		return defaults, nil
	}
	raw, err := p.Loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// OptionsResolver layers defaults -> loaded -> runtime overrides, matching
// the teacher's GoOptionsResolver. A field set to a non-zero value in
// runtime wins over loaded, and one set in loaded wins over defaults; a zero
// value (false, 0, "") in loaded or runtime is not written into its layer,
// so it never overrides a lower layer.
type OptionsResolver interface {
	Resolve(defaults, loaded, runtime Config) (Config, error)
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults, loaded, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.DatabaseURL) != "" {
		layer["database_url"] = cfg.DatabaseURL
	}
	if includeZero || cfg.FrequencyHours != 0 {
		layer["frequency"] = cfg.FrequencyHours
	}
	if includeZero || strings.TrimSpace(cfg.DataRoot) != "" {
		layer["data_root"] = cfg.DataRoot
	}
	if includeZero || cfg.Fetch {
		layer["fetch"] = cfg.Fetch
	}
	if includeZero || cfg.NoCache {
		layer["no_cache"] = cfg.NoCache
	}
	if includeZero || cfg.Test {
		layer["test"] = cfg.Test
	}
	if includeZero || cfg.EnableScheduler {
		layer["enable_scheduler"] = cfg.EnableScheduler
	}
	if includeZero || cfg.Debug {
		layer["debug"] = cfg.Debug
	}
	if includeZero || cfg.Load {
		layer["load"] = cfg.Load
	}
	if includeZero || len(cfg.Sources) > 0 {
		sources := make(map[string]any, len(cfg.Sources))
		for k, v := range cfg.Sources {
			sources[k] = v
		}
		layer["sources"] = sources
	}
	return layer
}
