package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/automation"
)

// Role names used by the permission gate.
const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleViewer     = "viewer"
)

// User represents an authenticated back-office operator.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name      string         `gorm:"size:255" json:"name,omitempty"`
	Password  string         `gorm:"size:255;not null" json:"-"` // bcrypt hash
	Role      string         `gorm:"size:20;not null;default:'viewer'" json:"role"`
}

// PriceRule stores one automation rule. ProductID nil applies the rule to
// every product.
type PriceRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string `gorm:"size:255;not null" json:"name"`
	ProductID *uint  `gorm:"index" json:"product_id,omitempty"`
	Priority  int    `gorm:"not null;default:0" json:"priority"`
	Active    bool   `gorm:"not null" json:"active"`

	Rule datatypes.JSONType[automation.Rule] `gorm:"not null" json:"rule"`
}
