package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvRawConfigLoaderParsesKnownVars(t *testing.T) {
	env := map[string]string{
		"CHAI_DATABASE_URL": "postgres://localhost/chai",
		"DATA_DIR":          "/srv/chai-data",
		"FREQUENCY":         "12",
		"FETCH":             "false",
		"NO_CACHE":          "true",
		"SOURCES_CRATES":    "https://static.crates.io/db-dump.tar.gz",
	}
	loader := &EnvRawConfigLoader{
		Lookup: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		Environ: func() []string {
			out := make([]string, 0, len(env))
			for k, v := range env {
				out = append(out, k+"="+v)
			}
			return out
		},
	}

	raw, err := loader.LoadRaw(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/chai", raw["database_url"])
	assert.Equal(t, "/srv/chai-data", raw["data_root"])
	assert.Equal(t, 12, raw["frequency"])
	assert.Equal(t, false, raw["fetch"])
	assert.Equal(t, true, raw["no_cache"])

	sources, ok := raw["sources"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://static.crates.io/db-dump.tar.gz", sources["crates"])

	_, hasDebug := raw["debug"]
	assert.False(t, hasDebug, "unset vars must be omitted, not written as zero values")
}

func TestEnvRawConfigLoaderRejectsInvalidFrequency(t *testing.T) {
	loader := &EnvRawConfigLoader{
		Lookup: func(key string) (string, bool) {
			if key == "FREQUENCY" {
				return "not-a-number", true
			}
			return "", false
		},
		Environ: func() []string { return nil },
	}
	_, err := loader.LoadRaw(context.Background())
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "database_url is required")

	cfg.DatabaseURL = "postgres://localhost/chai"
	assert.NoError(t, cfg.Validate())

	cfg.FrequencyHours = 0
	assert.Error(t, cfg.Validate())
}

func TestGoOptionsResolverRuntimeWinsOverLoaded(t *testing.T) {
	defaults := DefaultConfig()
	defaults.DatabaseURL = "postgres://default/chai"

	loaded := defaults
	loaded.FrequencyHours = 6
	loaded.Debug = true

	runtime := Config{NoCache: true}

	resolver := GoOptionsResolver{}
	resolved, err := resolver.Resolve(defaults, loaded, runtime)
	require.NoError(t, err)

	assert.Equal(t, 6, resolved.FrequencyHours, "loaded layer should win over defaults")
	assert.True(t, resolved.NoCache, "runtime layer should win over loaded")
}
