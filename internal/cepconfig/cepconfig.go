// Package cepconfig loads engine configuration with precedence defaults
// < config file < environment < flag, via viper.
package cepconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the resolved engine configuration.
type Config struct {
	DatabaseName string `mapstructure:"database"`
	SchemaPath   string `mapstructure:"schema"`
	MaxRecord    int    `mapstructure:"max_record"`
	VacuumRecord int64  `mapstructure:"vacuum_record"`
	Persistence  bool   `mapstructure:"persistence"`
	Synchronous  string `mapstructure:"synchronous"`
	Debug        bool   `mapstructure:"debug"`
}

// Loader wraps a viper instance scoped to one load, rather than a
// package-level singleton, so callers (and tests) can run more than one
// configuration in the same process.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader with the engine's defaults applied and
// environment variables bound under the CEP_ prefix (CEP_MAX_RECORD,
// CEP_VACUUM_RECORD, CEP_PERSISTENCE, CEP_SYNCHRONOUS, CEP_DATABASE,
// CEP_SCHEMA, CEP_DEBUG).
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("database", "cep")
	v.SetDefault("schema", "")
	v.SetDefault("max_record", 50)
	v.SetDefault("vacuum_record", 0)
	v.SetDefault("persistence", true)
	v.SetDefault("synchronous", "")
	v.SetDefault("debug", false)

	v.SetEnvPrefix("CEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// LoadFile reads path (if non-empty) as a YAML config file, merging it
// between the defaults and the environment in the precedence chain.
// A missing path is not an error; the loader simply falls back to
// defaults and environment variables.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("cepconfig: read %s: %w", path, err)
	}
	return nil
}

// BindFlag overrides key with an explicitly-set flag value, the highest
// precedence tier.
func (l *Loader) BindFlag(key string, value any) {
	l.v.Set(key, value)
}

// Build materializes the effective Config.
func (l *Loader) Build() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("cepconfig: unmarshal: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed reports the path of the config file actually read, or
// "" if none was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}
