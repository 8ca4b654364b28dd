// Package domain contains persistence models for platform clients.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ClientStatus represents the client lifecycle states.
type ClientStatus string

const (
	ClientStatusTrial     ClientStatus = "trial"
	ClientStatusActive    ClientStatus = "active"
	ClientStatusSuspended ClientStatus = "suspended"
)

// ClientRole distinguishes billable tenants from platform operators.
type ClientRole string

const (
	RoleClient     ClientRole = "client"
	RoleAdmin      ClientRole = "admin"
	RoleSuperAdmin ClientRole = "super_admin"
)

// SuspensionReason records why a client lost access.
type SuspensionReason string

const (
	SuspensionTrialExpired   SuspensionReason = "trial_expired"
	SuspensionPaymentOverdue SuspensionReason = "payment_overdue"
)

// TrialPeriodDays is the free trial length granted at registration.
const TrialPeriodDays = 90

// Client is one billable tenant on the platform.
type Client struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	BusinessName    string       `gorm:"type:text;not null"`
	BusinessType    string       `gorm:"type:text"`
	Email           string       `gorm:"type:text;not null;uniqueIndex"`
	ContactWhatsapp string       `gorm:"type:text"`
	Role            ClientRole   `gorm:"type:text;not null;default:'client'"`
	Status          ClientStatus `gorm:"type:text;not null;default:'trial';index"`

	TrialEndsAt *time.Time `gorm:""`

	// BillingDate is the day of month (1..31) monthly invoices are issued.
	BillingDate int             `gorm:"not null"`
	TotalUsers  int             `gorm:"not null;default:0"`
	MonthlyBill decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	SuspendedAt      *time.Time        `gorm:""`
	SuspensionReason *SuspensionReason `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }

// Billable reports whether monthly invoicing applies to this client.
// Platform operators never receive invoices.
func (c *Client) Billable() bool {
	return c.Role == RoleClient
}

// TrialExpired reports whether the trial window has ended.
func (c *Client) TrialExpired(now time.Time) bool {
	return c.Status == ClientStatusTrial && c.TrialEndsAt != nil && c.TrialEndsAt.Before(now)
}
