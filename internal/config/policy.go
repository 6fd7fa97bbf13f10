package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// CapacitySnapshot takes the eligible-agent set once per batch and never
	// re-checks max_load while assigning.
	CapacitySnapshot = "snapshot"
	// CapacityEnforce rejects work that would push an agent past max_load.
	CapacityEnforce = "enforce"
)

// AssignmentPolicy tunes the assignment engine.
type AssignmentPolicy struct {
	CancelReleasesLoad bool   `mapstructure:"cancelReleasesLoad"`
	CapacityMode       string `mapstructure:"capacityMode"`
}

// Policy holds workflow switches that can change without a restart.
type Policy struct {
	Assignment AssignmentPolicy `mapstructure:"assignment"`
}

func DefaultPolicy() Policy {
	return Policy{
		Assignment: AssignmentPolicy{
			CancelReleasesLoad: false,
			CapacityMode:       CapacitySnapshot,
		},
	}
}

func (p Policy) EnforceCapacity() bool {
	return p.Assignment.CapacityMode == CapacityEnforce
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(normalizePolicy(policy))
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("policy.config")

	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fieldops/config")
	v.AddConfigPath("/etc/fieldops")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FIELDOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newPolicyHolder(v, log)
}

func newPolicyHolder(v *viper.Viper, log *zap.Logger) (*PolicyHolder, error) {
	defaults := DefaultPolicy()
	v.SetDefault("policy.assignment.cancelReleasesLoad", defaults.Assignment.CancelReleasesLoad)
	v.SetDefault("policy.assignment.capacityMode", defaults.Assignment.CapacityMode)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg Policy
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizePolicy(cfg)
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	if !fileLoaded {
		log.Info("policy file not found, using defaults",
			zap.Bool("cancel_releases_load", cfg.Assignment.CancelReleasesLoad),
			zap.String("capacity_mode", cfg.Assignment.CapacityMode),
		)
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		updated = normalizePolicy(updated)
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	policy, ok := h.current.Load().(Policy)
	if !ok {
		return DefaultPolicy()
	}
	return policy
}

func normalizePolicy(p Policy) Policy {
	mode := strings.ToLower(strings.TrimSpace(p.Assignment.CapacityMode))
	if mode == "" {
		mode = CapacitySnapshot
	}
	p.Assignment.CapacityMode = mode
	return p
}

func validatePolicy(p Policy) error {
	switch p.Assignment.CapacityMode {
	case CapacitySnapshot, CapacityEnforce:
		return nil
	case "":
		return errors.New("policy.assignment.capacityMode cannot be empty")
	default:
		return fmt.Errorf("policy.assignment.capacityMode %q is not supported", p.Assignment.CapacityMode)
	}
}
