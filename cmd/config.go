package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/paged-kv-sim/sim"
)

// defaultPrompt is the shared prefix of the demonstration scenario.
const defaultPrompt = "You are a helpful Agent Who Is my Teacher of english"

// Scenario is the full YAML scenario file: the simulation config plus the
// requests to run. All sections must be listed to satisfy KnownFields(true)
// strict parsing.
type Scenario struct {
	Sim      sim.SimConfig     `yaml:",inline"`
	Mode     sim.RunMode       `yaml:"mode"`
	Requests []sim.RequestSpec `yaml:"requests"`
}

// defaultScenario reproduces the two-request demonstration: the same prefix
// twice, one decoded token each, released together at the end.
func defaultScenario() Scenario {
	return Scenario{
		Sim:  sim.DefaultSimConfig(),
		Mode: sim.ModeSequential,
		Requests: []sim.RequestSpec{
			{Prompt: defaultPrompt, DecodeTokens: 1},
			{Prompt: defaultPrompt, DecodeTokens: 1},
		},
	}
}

// loadScenario parses a scenario file on top of the defaults.
// Uses strict field checking: typos must cause errors.
func loadScenario(path string) (Scenario, error) {
	sc := defaultScenario()
	if path == "" {
		return sc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("reading scenario file %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario YAML %s: %w", path, err)
	}
	return sc, nil
}

// scenarioFlags are command-line overrides; a flag only wins when set
// explicitly, so a scenario file keeps its values otherwise.
type scenarioFlags struct {
	numPages     int
	pageSize     int
	layers       int
	heads        int
	headDim      int
	seed         int64
	holdsRef     bool
	mode         string
	prompts      []string
	decodeTokens int
}

func (f *scenarioFlags) register(fs *pflag.FlagSet) {
	def := sim.DefaultSimConfig()
	fs.IntVar(&f.numPages, "num-pages", def.Pool.NumPages, "Total number of KV pages in the pool")
	fs.IntVar(&f.pageSize, "page-size", def.Pool.PageSize, "Token slots per page")
	fs.IntVar(&f.layers, "layers", def.Model.Layers, "Transformer layers")
	fs.IntVar(&f.heads, "heads", def.Model.Heads, "Attention heads per layer")
	fs.IntVar(&f.headDim, "head-dim", def.Model.HeadDim, "Elements per head vector")
	fs.Int64Var(&f.seed, "seed", def.Seed, "Seed for synthetic K/V and token sampling")
	fs.BoolVar(&f.holdsRef, "cache-holds-ref", false, "Prefix cache keeps its own reference on cached pages")
	fs.StringVar(&f.mode, "mode", string(sim.ModeSequential), "Run mode (sequential, concurrent)")
	fs.StringArrayVar(&f.prompts, "prompt", nil, "Prompt of one request (repeatable); replaces the scenario's requests")
	fs.IntVar(&f.decodeTokens, "decode-tokens", 1, "Tokens decoded per request given with --prompt")
}

// apply overlays every explicitly set flag onto sc.
func (f *scenarioFlags) apply(fs *pflag.FlagSet, sc *Scenario) error {
	if fs.Changed("num-pages") {
		sc.Sim.Pool.NumPages = f.numPages
	}
	if fs.Changed("page-size") {
		sc.Sim.Pool.PageSize = f.pageSize
	}
	if fs.Changed("layers") {
		sc.Sim.Model.Layers = f.layers
	}
	if fs.Changed("heads") {
		sc.Sim.Model.Heads = f.heads
	}
	if fs.Changed("head-dim") {
		sc.Sim.Model.HeadDim = f.headDim
	}
	if fs.Changed("seed") {
		sc.Sim.Seed = f.seed
	}
	if fs.Changed("cache-holds-ref") {
		sc.Sim.Cache.HoldsReference = f.holdsRef
	}
	if fs.Changed("mode") {
		sc.Mode = sim.RunMode(f.mode)
	}
	if len(f.prompts) > 0 {
		sc.Requests = sc.Requests[:0]
		for _, p := range f.prompts {
			sc.Requests = append(sc.Requests, sim.RequestSpec{Prompt: p, DecodeTokens: f.decodeTokens})
		}
	}

	if !sim.IsValidRunMode(string(sc.Mode)) {
		return fmt.Errorf("unknown mode %q; valid: sequential, concurrent", sc.Mode)
	}
	if len(sc.Requests) == 0 {
		return fmt.Errorf("scenario has no requests")
	}
	for i, r := range sc.Requests {
		if r.DecodeTokens < 0 {
			return fmt.Errorf("request %d: decode_tokens must be >= 0, got %d", i, r.DecodeTokens)
		}
	}
	return sc.Sim.Validate()
}
