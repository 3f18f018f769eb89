package service

import (
	"encoding/json"
	"fmt"
	"sort"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// SaltProvider resolves the current per-tenant rotation salt from Vault's
// KV-v2 store, falling back to a static JSON blob when Vault is not
// configured or the lookup fails.
type SaltProvider struct {
	client         *vaultapi.Client
	secretTemplate string
	fallback       map[string][]model.Salt
}

// NewSaltProvider builds a SaltProvider. client may be nil to skip Vault
// entirely and use fallback only. secretTemplate is a KV-v2 path containing
// a "%s" tenant placeholder, e.g. "codeindexing/%s/salts".
func NewSaltProvider(client *vaultapi.Client, secretTemplate string, fallbackJSON string) (*SaltProvider, error) {
	fallback := make(map[string][]model.Salt)
	if fallbackJSON != "" {
		if err := json.Unmarshal([]byte(fallbackJSON), &fallback); err != nil {
			return nil, fmt.Errorf("service.NewSaltProvider: parse fallback salts: %w", err)
		}
	}
	return &SaltProvider{client: client, secretTemplate: secretTemplate, fallback: fallback}, nil
}

// CurrentSalt returns the highest-versioned salt for tenant, or the zero
// value if none is configured anywhere.
func (p *SaltProvider) CurrentSalt(tenantID string) model.Salt {
	salts := p.saltsForTenant(tenantID)
	if len(salts) == 0 {
		return model.Salt{}
	}
	sort.Slice(salts, func(i, j int) bool { return salts[i].Ver > salts[j].Ver })
	return salts[0]
}

func (p *SaltProvider) saltsForTenant(tenantID string) []model.Salt {
	if p.client != nil {
		if salts, ok := p.vaultSalts(tenantID); ok {
			return salts
		}
	}
	return p.fallback[tenantID]
}

func (p *SaltProvider) vaultSalts(tenantID string) ([]model.Salt, bool) {
	path := fmt.Sprintf(p.secretTemplate, tenantID)
	secret, err := p.client.Logical().Read("secret/data/" + path)
	if err != nil || secret == nil || secret.Data == nil {
		return nil, false
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	rawSalts, ok := data["salts"].([]interface{})
	if !ok {
		return nil, false
	}

	salts := make([]model.Salt, 0, len(rawSalts))
	for _, raw := range rawSalts {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		s := model.Salt{}
		if v, ok := entry["ver"].(float64); ok {
			s.Ver = int(v)
		}
		if v, ok := entry["value"].(string); ok {
			s.Value = v
		}
		salts = append(salts, s)
	}
	if len(salts) == 0 {
		return nil, false
	}
	return salts, true
}
