package sim

import "fmt"

// ModelShape is the per-slot key/value storage shape of every page.
type ModelShape struct {
	Layers  int `yaml:"layers"`   // transformer layers (must be > 0)
	Heads   int `yaml:"heads"`    // attention heads per layer (must be > 0)
	HeadDim int `yaml:"head_dim"` // elements per head vector (must be > 0)
}

// SlotElems is the number of float32 elements one slot holds per tensor.
func (s ModelShape) SlotElems() int { return s.Layers * s.Heads * s.HeadDim }

// PoolConfig groups page pool parameters.
type PoolConfig struct {
	NumPages int `yaml:"num_pages"` // fixed universe of pages (must be > 0)
	PageSize int `yaml:"page_size"` // slots per page (must be > 0)
}

// CacheConfig groups prefix cache parameters.
type CacheConfig struct {
	// HoldsReference makes the prefix cache a genuine shared owner: pages get
	// an extra reference on Put that is never released, since there is no
	// eviction. Off by default, matching the observed design where cached
	// pages survive only as long as some request references them.
	HoldsReference bool `yaml:"holds_reference"`
}

// SimConfig is the full configuration of a paging simulation.
type SimConfig struct {
	Pool  PoolConfig  `yaml:"pool"`
	Model ModelShape  `yaml:"model"`
	Cache CacheConfig `yaml:"cache"`
	Seed  int64       `yaml:"seed"`
}

// DefaultSimConfig mirrors the small demonstration setup: 8 pages of 4 slots
// and a distilgpt2-shaped model.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Pool:  PoolConfig{NumPages: 8, PageSize: 4},
		Model: ModelShape{Layers: 6, Heads: 12, HeadDim: 64},
		Seed:  42,
	}
}

// Validate reports the first invalid field.
func (c SimConfig) Validate() error {
	switch {
	case c.Pool.NumPages <= 0:
		return fmt.Errorf("NumPages must be > 0, got %d", c.Pool.NumPages)
	case c.Pool.PageSize <= 0:
		return fmt.Errorf("PageSize must be > 0, got %d", c.Pool.PageSize)
	case c.Model.Layers <= 0:
		return fmt.Errorf("Layers must be > 0, got %d", c.Model.Layers)
	case c.Model.Heads <= 0:
		return fmt.Errorf("Heads must be > 0, got %d", c.Model.Heads)
	case c.Model.HeadDim <= 0:
		return fmt.Errorf("HeadDim must be > 0, got %d", c.Model.HeadDim)
	}
	return nil
}
