package identity

import (
	"github.com/google/uuid"

	"github.com/loomnote/chat-backend/internal/apperr"
	"github.com/loomnote/chat-backend/internal/store"
)

// ScopeFor selects the tenant scope a request acts within.
//
// requested is the tenant id named by the request (header), or empty to
// default to the principal's first membership. A principal with no
// memberships is a tenant-setup condition, not an authentication failure.
// Naming a tenant the principal is not a member of is indistinguishable
// from naming one that does not exist.
func ScopeFor(p *Principal, requested string) (store.Scope, error) {
	if len(p.Memberships) == 0 {
		return store.Scope{}, apperr.New(apperr.KindTenantSetup, "no tenant membership")
	}

	if requested == "" {
		return store.Scope{TenantID: p.Memberships[0].TenantID, UserID: p.UserID}, nil
	}

	tenantID, err := uuid.Parse(requested)
	if err != nil {
		return store.Scope{}, apperr.New(apperr.KindValidation, "invalid tenant id")
	}
	if _, ok := p.Grant(tenantID); !ok {
		return store.Scope{}, apperr.New(apperr.KindNotFound, "tenant not found")
	}
	return store.Scope{TenantID: tenantID, UserID: p.UserID}, nil
}
