package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReminderConfig controls which day offsets trigger pre-due notifications.
type ReminderConfig struct {
	TrialWarningDays   []int `mapstructure:"trialWarningDays"`
	InvoiceWarningDays []int `mapstructure:"invoiceWarningDays"`
}

func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		TrialWarningDays:   []int{7, 3, 1},
		InvoiceWarningDays: []int{7, 3, 1},
	}
}

// ReminderConfigHolder keeps the reminder policy hot-reloadable: ops can tune
// warning offsets without restarting the scheduler.
type ReminderConfigHolder struct {
	current atomic.Value // holds ReminderConfig
}

func NewReminderConfigHolder(log *zap.Logger) (*ReminderConfigHolder, error) {
	log = log.Named("reminder.config")
	v := viper.New()

	v.SetConfigName("reminders")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tagihin/config")
	v.AddConfigPath("/etc/tagihin")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TAGIHIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReminderConfig()
	v.SetDefault("reminders.trialWarningDays", defaults.TrialWarningDays)
	v.SetDefault("reminders.invoiceWarningDays", defaults.InvoiceWarningDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ReminderConfig
	if err := v.UnmarshalKey("reminders", &cfg); err != nil {
		return nil, err
	}
	if err := validateReminderConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ReminderConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReminderConfig
		if err := v.UnmarshalKey("reminders", &updated); err != nil {
			log.Warn("reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := validateReminderConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reminder config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReminderConfigHolder) Current() ReminderConfig {
	if h == nil {
		return DefaultReminderConfig()
	}
	cfg, ok := h.current.Load().(ReminderConfig)
	if !ok {
		return DefaultReminderConfig()
	}
	return cfg
}

func validateReminderConfig(cfg ReminderConfig) error {
	if len(cfg.TrialWarningDays) == 0 || len(cfg.InvoiceWarningDays) == 0 {
		return errors.New("reminder config requires at least one warning offset")
	}
	for _, days := range append(append([]int{}, cfg.TrialWarningDays...), cfg.InvoiceWarningDays...) {
		if days <= 0 || days > 31 {
			return errors.New("reminder warning offsets must be between 1 and 31 days")
		}
	}
	return nil
}
