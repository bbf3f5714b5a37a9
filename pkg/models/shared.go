package models

import "time"

// UserRole represents the role of a platform user
type UserRole string

const (
	UserRoleOwner  UserRole = "owner"
	UserRoleAdmin  UserRole = "admin"
	UserRoleDoctor UserRole = "doctor"
	UserRoleStaff  UserRole = "staff"
)

// User is a platform account. A user may act in several companies.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Role         UserRole   `json:"role"`
	PasswordHash string     `json:"-" audit:"-"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Company is a clinic operator. Each company owns one tenant database.
type Company struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	TenantKey string     `json:"tenant_key"`
	OwnerID   string     `json:"owner_id"`
	Address   string     `json:"address,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// SubscriptionStatus represents the billing state of a company
type SubscriptionStatus string

const (
	SubscriptionTrial    SubscriptionStatus = "trial"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription is the plan a company pays for
type Subscription struct {
	ID        string             `json:"id"`
	CompanyID string             `json:"company_id"`
	Plan      string             `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Session is a login session. Sessions are infrastructure records and are
// not part of the audit trail.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
