package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TenantStore loads the tenant -> API keys mapping from a JSON file and
// keeps an APIKeyValidator in sync with it, reloading on file change.
type TenantStore struct {
	path      string
	validator *APIKeyValidator
	watcher   *fsnotify.Watcher

	mu      sync.RWMutex
	tenants map[string]map[string]bool
}

// NewTenantStore loads path once and starts a filesystem watcher so edits
// to the file (key rotation, new tenants) take effect without a restart. An
// empty path disables loading and watching; the validator keeps whatever
// state it was constructed with.
func NewTenantStore(path string, validator *APIKeyValidator) (*TenantStore, error) {
	s := &TenantStore{path: path, validator: validator, tenants: make(map[string]map[string]bool)}
	if path == "" {
		return s, nil
	}

	if err := s.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("service.NewTenantStore: watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("service.NewTenantStore: watch %s: %w", path, err)
	}
	s.watcher = watcher
	go s.watch()
	return s, nil
}

func (s *TenantStore) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				slog.Error("tenant store reload failed", "path", s.path, "error", err)
			} else {
				slog.Info("tenant store reloaded", "path", s.path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("tenant store watcher error", "error", err)
		}
	}
}

func (s *TenantStore) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("service.TenantStore.reload: read: %w", err)
	}

	var parsed map[string][]string
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("service.TenantStore.reload: parse: %w", err)
	}

	tenants := make(map[string]map[string]bool, len(parsed))
	for tenant, keys := range parsed {
		set := make(map[string]bool, len(keys))
		for _, k := range keys {
			set[k] = true
		}
		tenants[tenant] = set
	}

	s.mu.Lock()
	s.tenants = tenants
	s.mu.Unlock()

	if s.validator != nil {
		for tenant, keys := range tenants {
			s.validator.SetTenantKeys(tenant, keys)
		}
	}
	return nil
}

// Tenants returns the currently loaded tenant IDs.
func (s *TenantStore) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	return ids
}

// Close stops the filesystem watcher, if one is running.
func (s *TenantStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
