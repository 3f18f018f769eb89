package handler

import (
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

type tenantSaltResponse struct {
	TenantID string `json:"tenant_id"`
	SaltVer  int    `json:"salt_ver"`
	Salt     string `json:"salt"`
}

// TenantSalt handles GET /v1/tenant/salt?tenant_id=...: the out-of-scope
// client-side path tokenizer calls this to fetch the salt it HMACs path
// segments under. Returns a zero-value salt when none is configured,
// signaling the client to fall back to its default.
func TenantSalt(salts *service.SaltProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			respondError(w, r, apperr.New(apperr.CodeBadRequest, "tenant_id is required"))
			return
		}

		salt := salts.CurrentSalt(tenantID)
		respondJSON(w, http.StatusOK, tenantSaltResponse{TenantID: tenantID, SaltVer: salt.Ver, Salt: salt.Value})
	}
}
