package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig is the billing policy applied by the subscription engine.
// Amounts are minor units of Currency; a TrialPeriodDays of 0 disables trials.
type BillingConfig struct {
	Currency        string `mapstructure:"currency"`
	TrialPeriodDays int    `mapstructure:"trialPeriodDays"`
	GracePeriodDays int    `mapstructure:"gracePeriodDays"`
	DefaultPlanName string `mapstructure:"defaultPlanName"`
	GatewayProvider string `mapstructure:"gatewayProvider"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Currency:        "EUR",
		TrialPeriodDays: 30,
		GracePeriodDays: 14,
		DefaultPlanName: "free",
		GatewayProvider: "sandbox",
	}
}

// BillingConfigHolder exposes the current billing policy and hot-reloads it
// when the config file changes. Engine code reads it per operation so a
// reload never requires a restart.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/rebill/config") // Volume-mounted config
	v.AddConfigPath("/etc/rebill")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("REBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.trialPeriodDays", defaults.TrialPeriodDays)
	v.SetDefault("billing.gracePeriodDays", defaults.GracePeriodDays)
	v.SetDefault("billing.defaultPlanName", defaults.DefaultPlanName)
	v.SetDefault("billing.gatewayProvider", defaults.GatewayProvider)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
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

// NewStaticBillingConfigHolder pins a fixed policy, used by tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

// Set replaces the current policy. Intended for tests.
func (h *BillingConfigHolder) Set(cfg BillingConfig) {
	h.current.Store(cfg)
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	if cfg.TrialPeriodDays < 0 {
		return errors.New("billing.trialPeriodDays cannot be negative")
	}
	if cfg.GracePeriodDays < 0 {
		return errors.New("billing.gracePeriodDays cannot be negative")
	}
	if strings.TrimSpace(cfg.DefaultPlanName) == "" {
		return errors.New("billing.defaultPlanName cannot be empty")
	}
	return nil
}
