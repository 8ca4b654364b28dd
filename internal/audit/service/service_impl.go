package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tagihin/tagihin/internal/audit/domain"
	"github.com/tagihin/tagihin/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) StartCronJob(ctx context.Context, jobName string) (*auditdomain.CronJobLog, error) {
	entry := &auditdomain.CronJobLog{
		ID:        s.genID.Generate(),
		JobName:   jobName,
		Status:    auditdomain.CronJobStatusSuccess,
		StartedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.log.Error("failed to create cron job log", zap.String("job", jobName), zap.Error(err))
		return nil, err
	}
	return entry, nil
}

func (s *Service) CompleteCronJob(ctx context.Context, logID snowflake.ID, status auditdomain.CronJobStatus, stats auditdomain.JobStats) error {
	now := s.clock.Now()

	var entry auditdomain.CronJobLog
	if err := s.db.WithContext(ctx).First(&entry, "id = ?", logID).Error; err != nil {
		return err
	}

	duration := now.Sub(entry.StartedAt).Milliseconds()
	updates := map[string]any{
		"status":            status,
		"completed_at":      now,
		"duration_ms":       duration,
		"records_processed": stats.RecordsProcessed,
		"records_success":   stats.RecordsSuccess,
		"records_failed":    stats.RecordsFailed,
	}
	if stats.ErrorMessage != "" {
		updates["error_message"] = stats.ErrorMessage
	}

	return s.db.WithContext(ctx).
		Model(&auditdomain.CronJobLog{}).
		Where("id = ?", logID).
		Updates(updates).Error
}

// LogError is best-effort: audit failures are logged but never propagated,
// so a broken audit table cannot take down a billing sweep.
func (s *Service) LogError(ctx context.Context, service string, message string, level auditdomain.ErrorLevel, clientID *snowflake.ID, metadata map[string]any) {
	entry := &auditdomain.ErrorLog{
		ID:       s.genID.Generate(),
		Level:    level,
		Service:  service,
		Message:  message,
		ClientID: clientID,
	}
	if metadata != nil {
		entry.Metadata = datatypes.JSONMap(metadata)
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.log.Error("failed to write error log", zap.String("service", service), zap.Error(err))
	}
}
