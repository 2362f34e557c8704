package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecfuse/ann"
	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/manifest"
)

// PointerName is the blob holding the name of the active snapshot file.
const PointerName = "CURRENT"

// Options configures a Manager.
type Options struct {
	// Prefix is the directory of snapshot files within Store.
	Prefix string
	// Retention is how long the previously active snapshot stays in memory for
	// rollback without reloading.
	Retention time.Duration
	// PointerStore receives the CURRENT pointer. Defaults to Store.
	PointerStore blobstore.BlobStore
	// Factory builds vector indexes when loading files. Defaults to ann.NewFlat.
	Factory ann.Factory
	// Parallelism bounds concurrent index builds while loading.
	Parallelism int
	// Logger receives lifecycle events. Defaults to discarding.
	Logger *slog.Logger
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions contains the default manager settings.
var DefaultOptions = Options{
	Prefix:      "snapshots",
	Retention:   15 * time.Minute,
	Parallelism: 4,
}

// Status describes the manager state.
type Status struct {
	Active         Meta      `json:"active"`
	Previous       *Meta     `json:"previous,omitempty"`
	RetainedUntil  time.Time `json:"retained_until,omitempty"`
	Activations    int64     `json:"activations"`
	LastLoadError  string    `json:"last_load_error,omitempty"`
	LastActivation time.Time `json:"last_activation,omitempty"`
}

// Manager owns the active snapshot.
type Manager struct {
	store   blobstore.BlobStore
	pointer blobstore.BlobStore
	opts    Options
	log     *slog.Logger

	current atomic.Pointer[Snapshot]

	mu            sync.Mutex
	previous      *Snapshot
	supersededAt  time.Time
	activations   int64
	lastLoadError string
	lastActivated time.Time
}

// NewManager creates a manager over store holding Empty().
func NewManager(store blobstore.BlobStore, optFns ...func(o *Options)) *Manager {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pointer := opts.PointerStore
	if pointer == nil {
		pointer = store
	}

	m := &Manager{
		store:   store,
		pointer: pointer,
		opts:    opts,
		log:     opts.Logger,
	}
	m.current.Store(Empty())
	return m
}

// Current returns the active snapshot. It never returns nil and never blocks.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Activate makes s the active snapshot. The previously active snapshot is retained
// for rollback. When s was stored, the CURRENT pointer is updated first; a pointer
// write failure leaves the active snapshot unchanged.
func (m *Manager) Activate(ctx context.Context, s *Snapshot) error {
	if s == nil || s.Marker() == "" {
		return ErrInvalidSnapshot
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(ctx, s)
}

func (m *Manager) activateLocked(ctx context.Context, s *Snapshot) error {
	if s.URI() != "" {
		if err := m.pointer.Put(ctx, PointerName, []byte(s.URI())); err != nil {
			return fmt.Errorf("write snapshot pointer: %w", err)
		}
	}
	prev := m.current.Swap(s)
	now := m.opts.Now()
	if prev != s {
		m.previous = prev
		m.supersededAt = now
	}
	m.activations++
	m.lastActivated = now
	m.log.Info("snapshot activated",
		"marker", s.Marker(),
		"uri", s.URI(),
		"previous", prev.Marker(),
		"rows", s.Meta().TotalRows(),
	)
	return nil
}

// Load reads and decodes the snapshot stored at uri without activating it.
func (m *Manager) Load(ctx context.Context, uri string) (*Snapshot, error) {
	data, err := blobstore.ReadAll(ctx, m.store, uri)
	if err != nil {
		return nil, &LoadError{URI: uri, Err: err}
	}
	s, err := Decode(ctx, data, m.opts.Factory, m.opts.Parallelism)
	if err != nil {
		return nil, &LoadError{URI: uri, Err: err}
	}
	return s.withURI(uri), nil
}

// Reload loads the snapshot at uri and activates it. On failure the active
// snapshot is unchanged and the error is a *LoadError.
func (m *Manager) Reload(ctx context.Context, uri string) error {
	s, err := m.Load(ctx, uri)
	if err != nil {
		m.recordLoadError(err)
		return err
	}
	return m.Activate(ctx, s)
}

func (m *Manager) recordLoadError(err error) {
	m.mu.Lock()
	m.lastLoadError = err.Error()
	m.mu.Unlock()
	m.log.Error("snapshot load failed", "error", err, "active", m.Current().Marker())
}

// Rollback activates the snapshot stored at uri. If it is the retained previous
// snapshot and the retention window has not passed, it is swapped back without
// reloading. An empty uri means the retained previous snapshot.
func (m *Manager) Rollback(ctx context.Context, uri string) error {
	m.mu.Lock()
	prev := m.previous
	retained := prev != nil && m.opts.Now().Sub(m.supersededAt) <= m.opts.Retention
	if retained && (uri == "" || uri == prev.URI()) {
		defer m.mu.Unlock()
		m.log.Info("rolling back to retained snapshot", "marker", prev.Marker())
		return m.activateLocked(ctx, prev)
	}
	m.mu.Unlock()

	if uri == "" {
		if prev != nil && prev.URI() != "" {
			uri = prev.URI()
		} else {
			return ErrNoPrevious
		}
	}
	m.log.Info("rolling back by reload", "uri", uri)
	return m.Reload(ctx, uri)
}

// Restore activates the snapshot named by the CURRENT pointer. A missing pointer
// is not an error: the manager keeps its current snapshot.
func (m *Manager) Restore(ctx context.Context) error {
	data, err := blobstore.ReadAll(ctx, m.pointer, PointerName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil
		}
		return &LoadError{URI: PointerName, Err: err}
	}
	uri := strings.TrimSpace(string(data))
	if uri == "" || uri == m.Current().URI() {
		return nil
	}
	return m.Reload(ctx, uri)
}

// Status reports the active and retained snapshots.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Active:         m.Current().Meta(),
		Activations:    m.activations,
		LastLoadError:  m.lastLoadError,
		LastActivation: m.lastActivated,
	}
	if m.previous != nil {
		meta := m.previous.Meta()
		st.Previous = &meta
		st.RetainedUntil = m.supersededAt.Add(m.opts.Retention)
	}
	return st
}

// Prefix returns the directory of snapshot files.
func (m *Manager) Prefix() string { return m.opts.Prefix }

// GC deletes stored snapshots (and their report sidecars) beyond the newest keep.
// The active and retained snapshots are never deleted. It returns the deleted names.
func (m *Manager) GC(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	names, err := m.store.List(ctx, m.opts.Prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var files []string
	for _, n := range names {
		if strings.HasSuffix(n, FileExt) {
			files = append(files, n)
		}
	}
	// Marker prefixes are zero-padded manifest counts, so names sort by build order.
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	protected := map[string]bool{m.Current().URI(): true}
	m.mu.Lock()
	if m.previous != nil {
		protected[m.previous.URI()] = true
	}
	m.mu.Unlock()

	var deleted []string
	for i, n := range files {
		if i < keep || protected[n] {
			continue
		}
		if err := m.store.Delete(ctx, n); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", n, err)
		}
		deleted = append(deleted, n)
		report := strings.TrimSuffix(n, FileExt) + ReportExt
		if err := m.store.Delete(ctx, report); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", report, err)
		}
		deleted = append(deleted, report)
	}
	if len(deleted) > 0 {
		m.log.Info("snapshot gc", "deleted", len(deleted), "kept", keep)
	}
	return deleted, nil
}

// markerOf returns the marker encoded in a snapshot file name.
func markerOf(name string) string {
	base := name[strings.LastIndex(name, "/")+1:]
	return strings.TrimSuffix(base, FileExt)
}

// Latest returns the name of the newest stored snapshot file, by manifest count.
func (m *Manager) Latest(ctx context.Context) (string, error) {
	names, err := m.store.List(ctx, m.opts.Prefix+"/")
	if err != nil {
		return "", err
	}
	best, bestCount := "", -1
	for _, n := range names {
		if !strings.HasSuffix(n, FileExt) {
			continue
		}
		c, ok := manifest.MarkerCount(markerOf(n))
		if ok && (c > bestCount || (c == bestCount && n > best)) {
			best, bestCount = n, c
		}
	}
	if best == "" {
		return "", blobstore.ErrNotFound
	}
	return best, nil
}
