// Package catalog implements the Tool Catalog: an
// in-memory, read-after-load index of ToolProfile records, sourced from
// either a relational store or a filesystem corpus, indexed three ways for
// O(1) lookup by name, capability, and (intent_category, intent_action).
package catalog

import (
	"sync"

	pipelineerrors "github.com/opsconductor/pipeline-core/internal/errors"
	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// Loader produces the full set of tool profiles at startup or on an
// explicit reload signal.
type Loader interface {
	LoadAll() ([]types.ToolProfile, error)
}

// Catalog is the read-only, process-wide index. A reload builds a fresh
// index and swaps it in atomically so in-flight requests never observe a
// half-built index.
type Catalog struct {
	mu  sync.RWMutex
	idx *index
}

type index struct {
	byName      map[string]types.ToolProfile
	byCapability map[string][]types.ToolProfile
	byIntent    map[string][]types.ToolProfile
}

func intentKey(category, action string) string {
	return category + "::" + action
}

func buildIndex(profiles []types.ToolProfile) *index {
	idx := &index{
		byName:       make(map[string]types.ToolProfile, len(profiles)),
		byCapability: make(map[string][]types.ToolProfile),
		byIntent:     make(map[string][]types.ToolProfile),
	}
	for _, p := range profiles {
		idx.byName[p.ToolName] = p
		for _, c := range p.Capabilities {
			idx.byCapability[c.Name] = append(idx.byCapability[c.Name], p)
		}
		for _, tag := range p.IntentTags {
			key := intentKey(tag.Category, tag.Action)
			idx.byIntent[key] = append(idx.byIntent[key], p)
		}
	}
	return idx
}

// Load runs loader.LoadAll and builds the initial index. An empty catalog
// is fatal at startup.
func Load(loader Loader) (*Catalog, error) {
	profiles, err := loader.LoadAll()
	if err != nil {
		return nil, pipelineerrors.Wrap(err, pipelineerrors.ErrorTypeInternal, "failed to load tool catalog")
	}
	if len(profiles) == 0 {
		return nil, pipelineerrors.New(pipelineerrors.ErrorTypeInternal, "tool catalog loaded zero profiles")
	}
	return &Catalog{idx: buildIndex(profiles)}, nil
}

// Reload re-runs loader.LoadAll and swaps in a new index atomically. An
// empty result is rejected and the existing index is kept.
func (c *Catalog) Reload(loader Loader) error {
	profiles, err := loader.LoadAll()
	if err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.ErrorTypeInternal, "failed to reload tool catalog")
	}
	if len(profiles) == 0 {
		return pipelineerrors.New(pipelineerrors.ErrorTypeInternal, "reload produced zero profiles, keeping existing catalog")
	}
	newIdx := buildIndex(profiles)
	c.mu.Lock()
	c.idx = newIdx
	c.mu.Unlock()
	return nil
}

// ByName returns the profile for name, or false if absent. Lookup misses
// are never an error.
func (c *Catalog) ByName(name string) (types.ToolProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.idx.byName[name]
	return p, ok
}

// ByCapability returns every profile advertising capability.
func (c *Catalog) ByCapability(capability string) []types.ToolProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.ToolProfile(nil), c.idx.byCapability[capability]...)
}

// ByIntent returns every profile tagged with (category, action).
func (c *Catalog) ByIntent(category, action string) []types.ToolProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.ToolProfile(nil), c.idx.byIntent[intentKey(category, action)]...)
}

// LoadAll returns a snapshot of every loaded profile, for debug surfaces.
func (c *Catalog) LoadAll() []types.ToolProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ToolProfile, 0, len(c.idx.byName))
	for _, p := range c.idx.byName {
		out = append(out, p)
	}
	return out
}

// Count returns the number of loaded profiles.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.idx.byName)
}
