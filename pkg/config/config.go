// Package config loads control-plane configuration from file and
// environment. Higher layers hand the typed sections to the component
// constructors.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	awsutil "github.com/anuraagsster/AI-agent-builder-sub000/pkg/common/aws"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/fabric"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/metrics"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/monitor"
)

// DistributorConfig holds the distributor's external bindings.
type DistributorConfig struct {
	// MirrorTable names the durable task-projection table; empty
	// disables the mirror.
	MirrorTable string `json:"mirror_table" mapstructure:"mirror_table"`
	// WorkflowRoleARN is the execution role for created state machines;
	// empty disables workflow offload.
	WorkflowRoleARN string `json:"workflow_role_arn" mapstructure:"workflow_role_arn"`
}

// MetricsConfig holds metric-sink settings.
type MetricsConfig struct {
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// Config is the full control-plane configuration.
type Config struct {
	AWS         awsutil.AuthConfig `json:"aws" mapstructure:"aws"`
	Distributor DistributorConfig  `json:"distributor" mapstructure:"distributor"`
	Monitor     monitor.Config     `json:"monitor" mapstructure:"monitor"`
	Fabric      fabric.Config      `json:"fabric" mapstructure:"fabric"`
	Metrics     MetricsConfig      `json:"metrics" mapstructure:"metrics"`
}

// Load reads configuration from the given file (optional) merged with
// AWCP_-prefixed environment variables over built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AWCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("monitor.sample_interval", "1m")
	v.SetDefault("monitor.history_retention", "24h")
	v.SetDefault("fabric.serialization_format", string(fabric.FormatJSON))
	v.SetDefault("fabric.cross_owner_policy", string(fabric.PolicyDeny))
	v.SetDefault("fabric.async_queue_size", 1024)
	v.SetDefault("metrics.namespace", metrics.DefaultNamespace)
}
