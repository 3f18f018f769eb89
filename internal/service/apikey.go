package service

import (
	"crypto/subtle"
	"sync"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
)

// APIKeyValidator enforces per-tenant API keys. Comparisons are
// constant-time to avoid leaking key validity through timing.
type APIKeyValidator struct {
	mu         sync.RWMutex
	tenantKeys map[string]map[string]bool
	require    bool
}

// NewAPIKeyValidator builds a validator from a tenant -> allowed keys map.
// When require is false, Enforce always succeeds.
func NewAPIKeyValidator(tenantKeys map[string]map[string]bool, require bool) *APIKeyValidator {
	if tenantKeys == nil {
		tenantKeys = make(map[string]map[string]bool)
	}
	return &APIKeyValidator{tenantKeys: tenantKeys, require: require}
}

// Enforce checks apiKey against tenantID's allowed key set.
func (v *APIKeyValidator) Enforce(tenantID, apiKey string) error {
	if !v.require {
		return nil
	}
	if apiKey == "" {
		return apperr.New(apperr.CodeAuthMissing, "missing x-api-key")
	}

	v.mu.RLock()
	allowed := v.tenantKeys[tenantID]
	v.mu.RUnlock()

	for candidate := range allowed {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(apiKey)) == 1 {
			return nil
		}
	}
	return apperr.New(apperr.CodeAuthInvalid, "invalid api key")
}

// SetTenantKeys replaces the allowed key set for tenantID, used by the
// tenant store on hot-reload.
func (v *APIKeyValidator) SetTenantKeys(tenantID string, keys map[string]bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tenantKeys[tenantID] = keys
}
