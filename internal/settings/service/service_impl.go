package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	settingsdomain "github.com/tagihin/tagihin/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) settingsdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("settings.service"),
	}
}

func (s *Service) Get(ctx context.Context, key string) (string, error) {
	var setting settingsdomain.PlatformSetting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", settingsdomain.ErrSettingNotFound
		}
		return "", fmt.Errorf("load setting %q: %w", key, err)
	}
	return setting.Value, nil
}

func (s *Service) Set(ctx context.Context, key, value string) error {
	setting := settingsdomain.PlatformSetting{Key: key, Value: value}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
}

// PricePerUser resolves the current per-user price. A missing setting falls
// back to the platform default; a storage failure propagates so callers never
// bill from a silently-zero price.
func (s *Service) PricePerUser(ctx context.Context) (decimal.Decimal, error) {
	raw, err := s.Get(ctx, settingsdomain.KeyPricePerUser)
	if err != nil {
		if errors.Is(err, settingsdomain.ErrSettingNotFound) {
			return settingsdomain.DefaultPricePerUser, nil
		}
		return decimal.Zero, err
	}

	price, err := decimal.NewFromString(raw)
	if err != nil || price.IsNegative() {
		s.log.Warn("stored price_per_user is invalid", zap.String("value", raw))
		return decimal.Zero, settingsdomain.ErrInvalidPrice
	}
	return price, nil
}
