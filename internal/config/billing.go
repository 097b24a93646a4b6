package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/smallbiznis/meterline/internal/period"
)

// BillingConfig is the rating run policy read from billing.yml.
type BillingConfig struct {
	Granularity string `mapstructure:"granularity"`
	Currency    string `mapstructure:"currency"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Granularity: string(period.Monthly),
		Currency:    "USD",
	}
}

// BillingConfigHolder serves the current billing policy and follows file
// changes without a restart.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/meterline/config") // Volume-mounted config
	v.AddConfigPath("/etc/meterline")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("METERLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.granularity", defaults.Granularity)
		v.SetDefault("billing.currency", defaults.Currency)
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

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if _, err := period.ParseGranularity(cfg.Granularity); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	return nil
}
