package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTenantFile(t *testing.T, path string, data map[string][]string) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}
}

func TestTenantStoreLoadsKeysIntoValidator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenant_keys.json")
	writeTenantFile(t, path, map[string][]string{"t1": {"secret-1"}})

	validator := NewAPIKeyValidator(nil, true)
	store, err := NewTenantStore(path, validator)
	if err != nil {
		t.Fatalf("NewTenantStore() error: %v", err)
	}
	defer store.Close()

	if err := validator.Enforce("t1", "secret-1"); err != nil {
		t.Fatalf("Enforce() error after load: %v", err)
	}
}

func TestTenantStoreEmptyPathIsNoop(t *testing.T) {
	validator := NewAPIKeyValidator(nil, true)
	store, err := NewTenantStore("", validator)
	if err != nil {
		t.Fatalf("NewTenantStore() error: %v", err)
	}
	defer store.Close()

	if len(store.Tenants()) != 0 {
		t.Errorf("expected no tenants loaded, got %v", store.Tenants())
	}
}

func TestTenantStoreMissingFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does_not_exist.json")
	_, err := NewTenantStore(path, NewAPIKeyValidator(nil, true))
	if err == nil {
		t.Fatal("expected error for missing tenant keys file")
	}
}

func TestTenantStoreHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenant_keys.json")
	writeTenantFile(t, path, map[string][]string{"t1": {"old-key"}})

	validator := NewAPIKeyValidator(nil, true)
	store, err := NewTenantStore(path, validator)
	if err != nil {
		t.Fatalf("NewTenantStore() error: %v", err)
	}
	defer store.Close()

	writeTenantFile(t, path, map[string][]string{"t1": {"new-key"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := validator.Enforce("t1", "new-key"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("tenant store did not hot-reload new keys within timeout")
}
