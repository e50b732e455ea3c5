package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tenant statuses. Tenants are provisioned by an administrative process;
// the chat core only ever reads them.
const (
	TenantStatusActive    = "active"
	TenantStatusInactive  = "inactive"
	TenantStatusSuspended = "suspended"
)

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleUser   = "user"
	RoleViewer = "viewer"
)

// Tenant represents an isolated customer namespace. All conversation data
// is partitioned by tenant id.
type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string
	Slug      string            `gorm:"uniqueIndex"` // routing key, subdomain-like
	Settings  datatypes.JSONMap `gorm:"type:jsonb"`
	Status    string            `gorm:"type:varchar(16);default:'active';check:status IN ('active', 'inactive', 'suspended')"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Membership grants a user a role within a tenant. At most one row may
// exist per (user, tenant) pair.
type Membership struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_memberships_user_tenant"`
	TenantID  uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_memberships_user_tenant"`
	Role      string    `gorm:"type:varchar(10);check:role IN ('admin', 'user', 'viewer')"`
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
