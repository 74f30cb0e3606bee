package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DunningLevel configures one escalation stage of the reminder chain.
// FeeCents is the reminder fee printed on the notice (it never changes the
// invoice totals); GraceDays is added to the notice creation date to derive
// the notice due date.
type DunningLevel struct {
	Level     int   `mapstructure:"level"`
	FeeCents  int64 `mapstructure:"feeCents"`
	GraceDays int   `mapstructure:"graceDays"`
}

// BillingConfig is the hot-reloadable billing policy.
type BillingConfig struct {
	DefaultVATRate  float64        `mapstructure:"defaultVatRate"`
	PaymentTermDays int            `mapstructure:"paymentTermDays"`
	DunningLevels   []DunningLevel `mapstructure:"dunningLevels"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultVATRate:  19,
		PaymentTermDays: 14,
		DunningLevels: []DunningLevel{
			{Level: 1, FeeCents: 0, GraceDays: 7},
			{Level: 2, FeeCents: 500, GraceDays: 7},
			{Level: 3, FeeCents: 1000, GraceDays: 5},
		},
	}
}

// LevelConfig returns the configuration for a dunning level, falling back to
// the defaults when the level is not configured.
func (c BillingConfig) LevelConfig(level int) DunningLevel {
	for _, l := range c.DunningLevels {
		if l.Level == level {
			return l
		}
	}
	for _, l := range DefaultBillingConfig().DunningLevels {
		if l.Level == level {
			return l
		}
	}
	return DunningLevel{Level: level, GraceDays: 7}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fakturo/config")
	v.AddConfigPath("/etc/fakturo")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FAKTURO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.defaultVatRate", defaults.DefaultVATRate)
		v.SetDefault("billing.paymentTermDays", defaults.PaymentTermDays)
		v.SetDefault("billing.dunningLevels", defaults.DunningLevels)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder builds a holder around a fixed config.
// Used by tests and one-shot tools that must not touch the filesystem.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.DefaultVATRate < 0 || cfg.DefaultVATRate > 100 {
		return errors.New("billing.defaultVatRate must be between 0 and 100")
	}
	if cfg.PaymentTermDays <= 0 {
		return errors.New("billing.paymentTermDays must be positive")
	}
	if len(cfg.DunningLevels) == 0 {
		return errors.New("billing.dunningLevels cannot be empty")
	}
	for _, l := range cfg.DunningLevels {
		if l.Level < 1 || l.Level > 3 {
			return errors.New("billing.dunningLevels levels must be between 1 and 3")
		}
		if l.FeeCents < 0 {
			return errors.New("billing.dunningLevels fees cannot be negative")
		}
		if l.GraceDays <= 0 {
			return errors.New("billing.dunningLevels graceDays must be positive")
		}
	}
	return nil
}
