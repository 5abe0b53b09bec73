package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/svnlab/easy-file/errors"
)

// Load reads configuration from the environment and defaults only.
func Load() (*Config, error) {
	v := newViper()
	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific TOML file path,
// layered over defaults and environment variables.
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", configPath)
	}
	return unmarshal(v)
}

// LoadWithViper loads configuration using a provided Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("EASYFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Export.AppID == "" {
		return errors.New("export.app_id must not be empty")
	}
	if c.Export.MaxRetryAttempts < 1 {
		return errors.Newf("export.max_retry_attempts must be >= 1, got %d", c.Export.MaxRetryAttempts)
	}
	if c.Trigger.MaxTriggerCount < 1 {
		return errors.Newf("trigger.max_trigger_count must be >= 1, got %d", c.Trigger.MaxTriggerCount)
	}
	if c.Trigger.Queue == "" {
		return errors.New("trigger.queue must not be empty")
	}
	return nil
}
