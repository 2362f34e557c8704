package allowlist

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/vecfuse/filter"
)

var _ filter.AllowlistLookup = (*Map)(nil)

// Map is an in-memory lookup.
type Map struct {
	mu sync.RWMutex
	// idx maps key -> value -> set of asset ids.
	idx map[string]map[string]map[string]struct{}
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{idx: make(map[string]map[string]map[string]struct{})}
}

// Set records that assetID has key=value.
func (m *Map) Set(assetID, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byValue, ok := m.idx[key]
	if !ok {
		byValue = make(map[string]map[string]struct{})
		m.idx[key] = byValue
	}
	assets, ok := byValue[value]
	if !ok {
		assets = make(map[string]struct{})
		byValue[value] = assets
	}
	assets[assetID] = struct{}{}
}

// AssetsFor returns the sorted ids of assets with key equal to any of values.
func (m *Map) AssetsFor(_ context.Context, key string, values []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, v := range values {
		for a := range m.idx[key][v] {
			seen[a] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}
