package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	"github.com/tagihin/tagihin/internal/clock"
	"github.com/tagihin/tagihin/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) clientdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("client.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) WithTx(tx *gorm.DB) clientdomain.Service {
	return &Service{db: tx, log: s.log, genID: s.genID, clock: s.clock}
}

func (s *Service) Register(ctx context.Context, in clientdomain.RegisterInput) (*clientdomain.Client, error) {
	now := s.clock.Now()
	trialEnds := now.AddDate(0, 0, clientdomain.TrialPeriodDays)

	c := &clientdomain.Client{
		ID:              s.genID.Generate(),
		BusinessName:    in.BusinessName,
		BusinessType:    in.BusinessType,
		Email:           in.Email,
		ContactWhatsapp: in.ContactWhatsapp,
		Role:            clientdomain.RoleClient,
		Status:          clientdomain.ClientStatusTrial,
		TrialEndsAt:     &trialEnds,
		BillingDate:     now.Day(),
		TotalUsers:      in.TotalUsers,
		MonthlyBill:     decimal.Zero,
	}

	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, clientdomain.ErrEmailTaken
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*clientdomain.Client, error) {
	var c clientdomain.Client
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, clientdomain.ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*clientdomain.Client, error) {
	var c clientdomain.Client
	err := s.db.WithContext(ctx).First(&c, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, clientdomain.ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Service) ListBillableOnDay(ctx context.Context, day int, lastDayOfMonth int) ([]clientdomain.Client, error) {
	q := s.db.WithContext(ctx).
		Where("role = ? AND status = ?", clientdomain.RoleClient, clientdomain.ClientStatusActive)
	if day >= lastDayOfMonth {
		// Short months fold 29..31 anniversaries onto the last day.
		q = q.Where("billing_date >= ?", day)
	} else {
		q = q.Where("billing_date = ?", day)
	}

	var clients []clientdomain.Client
	if err := q.Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Service) ListTrialsEndingOn(ctx context.Context, date time.Time) ([]clientdomain.Client, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	// Trials that already lapsed belong to the expiry sweep, not a warning.
	var clients []clientdomain.Client
	err := s.db.WithContext(ctx).
		Where("role = ? AND status = ? AND trial_ends_at > ? AND trial_ends_at >= ? AND trial_ends_at < ?",
			clientdomain.RoleClient, clientdomain.ClientStatusTrial, s.clock.Now(), dayStart, dayEnd).
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Service) ListTrialsExpired(ctx context.Context, now time.Time) ([]clientdomain.Client, error) {
	var clients []clientdomain.Client
	err := s.db.WithContext(ctx).
		Where("role = ? AND status = ? AND trial_ends_at < ?",
			clientdomain.RoleClient, clientdomain.ClientStatusTrial, now).
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Service) Suspend(ctx context.Context, c *clientdomain.Client, reason clientdomain.SuspensionReason, now time.Time) (bool, error) {
	if c.Status == clientdomain.ClientStatusSuspended {
		return false, nil
	}

	result := s.db.WithContext(ctx).
		Model(&clientdomain.Client{}).
		Where("id = ? AND status <> ?", c.ID, clientdomain.ClientStatusSuspended).
		Updates(map[string]any{
			"status":            clientdomain.ClientStatusSuspended,
			"suspended_at":      now,
			"suspension_reason": reason,
			"updated_at":        now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	c.Status = clientdomain.ClientStatusSuspended
	c.SuspendedAt = &now
	c.SuspensionReason = &reason
	s.log.Info("client suspended",
		zap.Int64("client_id", int64(c.ID)),
		zap.String("reason", string(reason)))
	return true, nil
}

func (s *Service) Activate(ctx context.Context, c *clientdomain.Client, confirmedAt time.Time) (bool, error) {
	if c.Status == clientdomain.ClientStatusActive {
		return false, nil
	}

	updates := map[string]any{
		"status":            clientdomain.ClientStatusActive,
		"suspended_at":      nil,
		"suspension_reason": nil,
		"updated_at":        confirmedAt,
	}
	// Coming out of trial or suspension, the paid month starts now, so the
	// anniversary follows the activation day rather than the signup day.
	billingDate := confirmedAt.Day()
	updates["billing_date"] = billingDate

	result := s.db.WithContext(ctx).
		Model(&clientdomain.Client{}).
		Where("id = ? AND status <> ?", c.ID, clientdomain.ClientStatusActive).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	c.Status = clientdomain.ClientStatusActive
	c.SuspendedAt = nil
	c.SuspensionReason = nil
	c.BillingDate = billingDate
	s.log.Info("client activated",
		zap.Int64("client_id", int64(c.ID)),
		zap.Int("billing_date", billingDate))
	return true, nil
}

func (s *Service) SetTotalUsers(ctx context.Context, c *clientdomain.Client, totalUsers int, pricePerUser decimal.Decimal) error {
	if totalUsers < 0 {
		return errors.New("total users must not be negative")
	}
	monthlyBill := pricePerUser.Mul(decimal.NewFromInt(int64(totalUsers)))

	err := s.db.WithContext(ctx).
		Model(&clientdomain.Client{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{
			"total_users":  totalUsers,
			"monthly_bill": monthlyBill,
		}).Error
	if err != nil {
		return err
	}

	c.TotalUsers = totalUsers
	c.MonthlyBill = monthlyBill
	return nil
}
