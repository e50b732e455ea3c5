// Package identity resolves session tokens into an authenticated principal
// and the tenant memberships that principal may act within.
//
// The resolver is a pure boundary check: it performs no redirects and makes
// no UI decisions. Zero memberships is a valid, non-fatal state distinct
// from "not logged in".
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/loomnote/chat-backend/internal/apperr"
	"github.com/loomnote/chat-backend/internal/models"
)

// TenantGrant is one (tenant, role) pair a principal holds.
type TenantGrant struct {
	TenantID uuid.UUID `json:"tenantId"`
	Role     string    `json:"role"`
}

// Principal is an authenticated user and the tenants it may act within.
// Memberships are ordered by tenant id so scope selection is deterministic.
type Principal struct {
	UserID      uuid.UUID     `json:"userId"`
	Memberships []TenantGrant `json:"memberships"`
}

// Grant returns the grant for tenantID, if the principal holds one.
func (p *Principal) Grant(tenantID uuid.UUID) (TenantGrant, bool) {
	for _, g := range p.Memberships {
		if g.TenantID == tenantID {
			return g, true
		}
	}
	return TenantGrant{}, false
}

// Resolver turns session tokens into principals. It holds no state between
// requests; token refresh is an explicit, idempotent operation performed
// per call rather than through a background timer.
type Resolver struct {
	db            *gorm.DB
	secret        []byte
	tokenTTL      time.Duration
	refreshWindow time.Duration

	now func() time.Time // test hook
}

// NewResolver creates a Resolver backed by the given database and HS256 secret.
func NewResolver(db *gorm.DB, secret string, tokenTTL, refreshWindow time.Duration) *Resolver {
	return &Resolver{
		db:            db,
		secret:        []byte(secret),
		tokenTTL:      tokenTTL,
		refreshWindow: refreshWindow,
		now:           time.Now,
	}
}

// IssueToken mints a session token for the given user.
func (r *Resolver) IssueToken(userID uuid.UUID) (string, time.Time, error) {
	now := r.now()
	expiresAt := now.Add(r.tokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Resolve authenticates a session token and loads the principal's tenant
// memberships. A malformed or expired token yields an authentication error;
// zero memberships yields a principal with an empty membership list.
//
// The second return value is a refreshed token when the presented one is
// inside the refresh window, or "" otherwise. Refresh failures are logged
// and ignored: the still-valid original token is honored until it expires.
func (r *Resolver) Resolve(ctx context.Context, tokenString string) (*Principal, string, error) {
	if tokenString == "" {
		return nil, "", apperr.New(apperr.KindAuthentication, "missing session token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithTimeFunc(r.now))
	if err != nil || !token.Valid {
		if err == nil {
			err = errors.New("token not valid")
		}
		return nil, "", apperr.Wrap(apperr.KindAuthentication, "invalid session token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "", apperr.New(apperr.KindAuthentication, "invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, "", apperr.New(apperr.KindAuthentication, "invalid user id in token")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, "", apperr.New(apperr.KindAuthentication, "invalid user id format")
	}

	principal := &Principal{UserID: userID}

	// A membership lookup failure is a tenant-setup problem, not an
	// authentication failure: the session itself is fine, so the principal
	// is returned with no memberships and the chat surface stays usable.
	var memberships []models.Membership
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("tenant_id ASC").
		Find(&memberships).Error; err != nil {
		log.Printf("Failed to load tenant memberships for user %s: %v", userID, err)
		return principal, r.maybeRefresh(userID, claims), nil
	}

	for _, m := range memberships {
		principal.Memberships = append(principal.Memberships, TenantGrant{
			TenantID: m.TenantID,
			Role:     m.Role,
		})
	}

	return principal, r.maybeRefresh(userID, claims), nil
}

// maybeRefresh mints a successor token when the current one is close to
// expiry. Never on the critical path: any failure is swallowed.
func (r *Resolver) maybeRefresh(userID uuid.UUID, claims jwt.MapClaims) string {
	if r.refreshWindow <= 0 {
		return ""
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ""
	}
	if exp.Time.Sub(r.now()) > r.refreshWindow {
		return ""
	}
	refreshed, _, err := r.IssueToken(userID)
	if err != nil {
		log.Printf("Failed to refresh session token for user %s: %v", userID, err)
		return ""
	}
	return refreshed
}
