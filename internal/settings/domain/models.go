// Package domain contains the platform settings model and service contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PlatformSetting is a persisted key-value configuration entry.
type PlatformSetting struct {
	Key       string    `gorm:"primaryKey;type:text"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlatformSetting) TableName() string { return "platform_settings" }

const KeyPricePerUser = "price_per_user"

// DefaultPricePerUser applies when no price_per_user setting is stored.
var DefaultPricePerUser = decimal.NewFromInt(3000)

var (
	ErrSettingNotFound = errors.New("setting_not_found")
	ErrInvalidPrice    = errors.New("invalid_price_value")
)

type Service interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	PricePerUser(ctx context.Context) (decimal.Decimal, error)
}
