package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/paged-kv-sim/sim"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_EmptyPath_ReturnsDefaults(t *testing.T) {
	sc, err := loadScenario("")
	require.NoError(t, err)
	assert.Equal(t, defaultScenario(), sc)
}

func TestLoadScenario_OverlaysDefaults(t *testing.T) {
	path := writeScenario(t, `
pool:
  num_pages: 16
cache:
  holds_reference: true
mode: concurrent
requests:
  - prompt: "a b c"
    decode_tokens: 2
`)
	sc, err := loadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, 16, sc.Sim.Pool.NumPages)
	assert.Equal(t, 4, sc.Sim.Pool.PageSize, "unset fields keep their defaults")
	assert.Equal(t, sim.DefaultSimConfig().Model, sc.Sim.Model)
	assert.True(t, sc.Sim.Cache.HoldsReference)
	assert.Equal(t, sim.ModeConcurrent, sc.Mode)
	assert.Equal(t, []sim.RequestSpec{{Prompt: "a b c", DecodeTokens: 2}}, sc.Requests)
}

func TestLoadScenario_UnknownField_Fails(t *testing.T) {
	path := writeScenario(t, "pool:\n  num_pagez: 3\n")
	_, err := loadScenario(path)
	assert.ErrorContains(t, err, "num_pagez")
}

func TestLoadScenario_MissingFile_Fails(t *testing.T) {
	_, err := loadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func parseFlags(t *testing.T, args ...string) (*scenarioFlags, *pflag.FlagSet) {
	t.Helper()
	f := &scenarioFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)
	require.NoError(t, fs.Parse(args))
	return f, fs
}

func TestScenarioFlags_OnlyExplicitFlagsOverride(t *testing.T) {
	// GIVEN a scenario with non-default pool settings
	sc := defaultScenario()
	sc.Sim.Pool.NumPages = 32

	// WHEN only --page-size and --seed are passed
	f, fs := parseFlags(t, "--page-size", "8", "--seed", "7")
	require.NoError(t, f.apply(fs, &sc))

	// THEN the scenario's own values survive for the rest
	assert.Equal(t, 32, sc.Sim.Pool.NumPages)
	assert.Equal(t, 8, sc.Sim.Pool.PageSize)
	assert.Equal(t, int64(7), sc.Sim.Seed)
	assert.Len(t, sc.Requests, 2)
}

func TestScenarioFlags_PromptsReplaceRequests(t *testing.T) {
	sc := defaultScenario()
	f, fs := parseFlags(t, "--prompt", "x y", "--prompt", "x y z", "--decode-tokens", "3", "--cache-holds-ref", "--mode", "concurrent")
	require.NoError(t, f.apply(fs, &sc))

	assert.Equal(t, []sim.RequestSpec{{Prompt: "x y", DecodeTokens: 3}, {Prompt: "x y z", DecodeTokens: 3}}, sc.Requests)
	assert.True(t, sc.Sim.Cache.HoldsReference)
	assert.Equal(t, sim.ModeConcurrent, sc.Mode)
}

func TestScenarioFlags_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		edit func(*Scenario)
	}{
		{name: "bad mode", args: []string{"--mode", "parallel"}},
		{name: "zero pages", args: []string{"--num-pages", "0"}},
		{name: "negative decode", args: []string{"--prompt", "a", "--decode-tokens", "-1"}},
		{name: "no requests", edit: func(sc *Scenario) { sc.Requests = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := defaultScenario()
			if tt.edit != nil {
				tt.edit(&sc)
			}
			f, fs := parseFlags(t, tt.args...)
			assert.Error(t, f.apply(fs, &sc))
		})
	}
}
