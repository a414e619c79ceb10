package municipality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Municipality describes one tenant of the admin platform and the
// service modules currently enabled for it.
type Municipality struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Modules []string `json:"modules"`
}

// HasModule reports whether the named module is enabled.
func (m *Municipality) HasModule(module string) bool {
	if m == nil {
		return false
	}
	for _, enabled := range m.Modules {
		if enabled == module {
			return true
		}
	}
	return false
}

// API is the slice of the backend client the registry needs.
type API interface {
	Get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error)
}

const defaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	mun     *Municipality
	fetched time.Time
}

// Registry is a read-through cache of municipality records. Module
// flags change rarely but gate every navigation, so entries are held
// for a short TTL instead of hitting the backend per check.
type Registry struct {
	api API
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewRegistry creates a municipality [Registry]. ttl <= 0 selects the
// 30s default.
func NewRegistry(api API, ttl time.Duration) (*Registry, error) {
	if api == nil {
		return nil, errors.New("municipality registry requires an API client")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Registry{
		api:     api,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}, nil
}

// Municipality returns the tenant record, from cache when fresh.
func (r *Registry) Municipality(ctx context.Context, municipalityID string) (*Municipality, error) {
	if municipalityID == "" {
		return nil, errors.New("municipality id cannot be empty")
	}

	r.mu.RLock()
	entry, ok := r.entries[municipalityID]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetched) < r.ttl {
		return entry.mun, nil
	}

	doc, err := r.api.Get(ctx, "/municipalities/"+url.PathEscape(municipalityID), nil)
	if err != nil {
		return nil, fmt.Errorf("load municipality %s: %w", municipalityID, err)
	}

	var mun Municipality
	if err := json.Unmarshal(doc, &mun); err != nil {
		return nil, fmt.Errorf("decode municipality %s: %w", municipalityID, err)
	}
	if mun.ID == "" {
		mun.ID = municipalityID
	}

	r.mu.Lock()
	r.entries[municipalityID] = cacheEntry{mun: &mun, fetched: time.Now()}
	r.mu.Unlock()

	return &mun, nil
}

// HasModule reports whether a module is enabled for the municipality.
func (r *Registry) HasModule(ctx context.Context, municipalityID, module string) (bool, error) {
	mun, err := r.Municipality(ctx, municipalityID)
	if err != nil {
		return false, err
	}
	return mun.HasModule(module), nil
}

// Invalidate drops a cached municipality so the next check refetches.
func (r *Registry) Invalidate(municipalityID string) {
	r.mu.Lock()
	delete(r.entries, municipalityID)
	r.mu.Unlock()
}
