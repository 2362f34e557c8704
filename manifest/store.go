package manifest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/vecfuse/blobstore"
)

// Store is the read-only source of manifests.
type Store interface {
	// List returns every known manifest. Order is not significant.
	List(ctx context.Context) ([]*Manifest, error)
}

// BlobStore reads JSON manifests stored under a prefix of a blob store.
type BlobStore struct {
	store  blobstore.BlobStore
	prefix string

	mu    sync.Mutex
	cache map[string]*Manifest
}

// NewBlobStore creates a manifest store over store. Every "*.json" blob under prefix is
// one manifest.
func NewBlobStore(store blobstore.BlobStore, prefix string) *BlobStore {
	return &BlobStore{
		store:  store,
		prefix: prefix,
		cache:  make(map[string]*Manifest),
	}
}

// List loads all manifests. Manifests are immutable, so each blob is parsed once.
func (s *BlobStore) List(ctx context.Context) ([]*Manifest, error) {
	names, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Manifest, 0, len(names))
	for _, name := range names {
		if path.Ext(name) != ".json" {
			continue
		}
		if m, ok := s.cache[name]; ok {
			out = append(out, m)
			continue
		}
		data, err := blobstore.ReadAll(ctx, s.store, name)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("read manifest %s: %w", name, err)
		}
		m, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", name, err)
		}
		s.cache[name] = m
		out = append(out, m)
	}
	return out, nil
}

// Put writes m as "<prefix>/<id>.json". Ingestion owns manifests; Put exists for
// fixtures and tooling.
func (s *BlobStore) Put(ctx context.Context, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, path.Join(s.prefix, m.ID+".json"), data)
}

// Static is an in-memory Store.
type Static struct {
	mu        sync.RWMutex
	manifests []*Manifest
}

// NewStatic returns a Store serving ms.
func NewStatic(ms ...*Manifest) *Static {
	return &Static{manifests: append([]*Manifest(nil), ms...)}
}

// Add appends manifests.
func (s *Static) Add(ms ...*Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests = append(s.manifests, ms...)
}

// List returns the manifests added so far.
func (s *Static) List(context.Context) ([]*Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Manifest(nil), s.manifests...), nil
}

// Since returns the manifests listed by store whose ids are not in applied, ordered
// by (CreatedAt, ID). Duplicate ids in the listing are collapsed to the first seen.
func Since(ctx context.Context, store Store, applied []string) ([]*Manifest, error) {
	all, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(applied))
	for _, id := range applied {
		done[id] = true
	}

	out := make([]*Manifest, 0, len(all))
	for _, m := range all {
		if done[m.ID] {
			continue
		}
		done[m.ID] = true
		out = append(out, m)
	}
	SortManifests(out)
	return out, nil
}

// SortManifests orders ms by (CreatedAt, ID).
func SortManifests(ms []*Manifest) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return strings.Compare(ms[i].ID, ms[j].ID) < 0
	})
}
