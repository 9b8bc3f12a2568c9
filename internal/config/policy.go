package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PolicyConfig carries operational tuning knobs that ops can change without a
// redeploy. Values load from policy.yml when present and fall back to defaults.
type PolicyConfig struct {
	// MaxBatchUnits caps the number of units accepted in one batch request.
	// Zero disables the cap.
	MaxBatchUnits int `mapstructure:"maxBatchUnits"`

	// DefaultCurrency labels amounts when the service definition carries no
	// currency of its own.
	DefaultCurrency string `mapstructure:"defaultCurrency"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxBatchUnits:   500,
		DefaultCurrency: "USD",
	}
}

// PolicyConfigHolder hands out the current policy snapshot. Readers always get
// a complete config; reloads swap atomically and invalid files are ignored.
type PolicyConfigHolder struct {
	current atomic.Value // holds PolicyConfig
}

func NewPolicyConfigHolder(log *zap.Logger) (*PolicyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/meridian/config")
	v.AddConfigPath("/etc/meridian")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicyConfig()
	v.SetDefault("policy.maxBatchUnits", defaults.MaxBatchUnits)
	v.SetDefault("policy.defaultCurrency", defaults.DefaultCurrency)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PolicyConfig
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyConfigHolder{}
	holder.current.Store(cfg)

	log = log.Named("config.policy")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PolicyConfig
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicyConfig(updated); err != nil {
			log.Warn("invalid policy config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// StaticPolicyHolder wraps a fixed config, for tests and embedded use.
func StaticPolicyHolder(cfg PolicyConfig) *PolicyConfigHolder {
	holder := &PolicyConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PolicyConfigHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if cfg.MaxBatchUnits < 0 {
		return errors.New("policy.maxBatchUnits cannot be negative")
	}
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		return errors.New("policy.defaultCurrency cannot be empty")
	}
	return nil
}
