// Package domain contains persistence models for execution audit trails.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CronJobStatus is the coarse outcome of one scheduled job execution.
type CronJobStatus string

const (
	CronJobStatusSuccess CronJobStatus = "success"
	CronJobStatusWarning CronJobStatus = "warning"
	CronJobStatusFailed  CronJobStatus = "failed"
)

// CronJobLog records exactly one scheduler execution, success or failure.
type CronJobLog struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	JobName          string        `gorm:"type:text;not null;index"`
	Status           CronJobStatus `gorm:"type:text;not null"`
	StartedAt        time.Time     `gorm:"not null"`
	CompletedAt      *time.Time    `gorm:""`
	DurationMs       *int64        `gorm:""`
	RecordsProcessed int           `gorm:"not null;default:0"`
	RecordsSuccess   int           `gorm:"not null;default:0"`
	RecordsFailed    int           `gorm:"not null;default:0"`
	ErrorMessage     *string       `gorm:"type:text"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CronJobLog) TableName() string { return "cron_job_logs" }

type ErrorLevel string

const (
	ErrorLevelError   ErrorLevel = "error"
	ErrorLevelWarning ErrorLevel = "warning"
	ErrorLevelInfo    ErrorLevel = "info"
)

// ErrorLog is an append-only record of error events from background work.
type ErrorLog struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	Level     ErrorLevel        `gorm:"type:text;not null"`
	Service   string            `gorm:"type:text;not null;index"`
	Message   string            `gorm:"type:text;not null"`
	ClientID  *snowflake.ID     `gorm:"index"`
	Metadata  datatypes.JSONMap `gorm:""`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ErrorLog) TableName() string { return "error_logs" }

// JobStats carries completion counters for a cron job log.
type JobStats struct {
	RecordsProcessed int
	RecordsSuccess   int
	RecordsFailed    int
	ErrorMessage     string
}

type Service interface {
	StartCronJob(ctx context.Context, jobName string) (*CronJobLog, error)
	CompleteCronJob(ctx context.Context, logID snowflake.ID, status CronJobStatus, stats JobStats) error
	LogError(ctx context.Context, service string, message string, level ErrorLevel, clientID *snowflake.ID, metadata map[string]any)
}
