package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/websql/internal/paths"
	"github.com/mesh-intelligence/websql/pkg/types"
)

// Config keys in config.yaml.
const (
	cfgKeyDriver         = "driver"
	cfgKeyDataDir        = "data_dir"
	cfgKeyAsync          = "async"
	cfgKeyWorkers        = "workers"
	cfgKeyConnectRetries = "connect_retries"
	cfgKeyBusyTimeout    = "busy_timeout"
	cfgKeyLogLevel       = "log_level"
)

// envPrefix prefixes environment overrides of config keys, e.g.
// WEBSQL_DRIVER=sqlite3.
const envPrefix = "WEBSQL"

// fileConfig is the document init writes to config.yaml.
type fileConfig struct {
	Driver         string `yaml:"driver"`
	DataDir        string `yaml:"data_dir,omitempty"`
	Async          bool   `yaml:"async"`
	Workers        int    `yaml:"workers"`
	ConnectRetries int    `yaml:"connect_retries"`
	BusyTimeout    string `yaml:"busy_timeout"`
	LogLevel       string `yaml:"log_level"`
}

func defaultFileConfig(dataDir string) fileConfig {
	return fileConfig{
		Driver:         types.DriverModernC,
		DataDir:        dataDir,
		Workers:        types.DefaultWorkers,
		ConnectRetries: types.DefaultConnectRetries,
		BusyTimeout:    types.DefaultBusyTimeout.String(),
		LogLevel:       "warn",
	}
}

// loadConfig reads config.yaml from configDir with viper. A missing file is
// not an error; defaults and WEBSQL_* variables still apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDriver, types.DriverModernC)
	v.SetDefault(cfgKeyAsync, false)
	v.SetDefault(cfgKeyWorkers, types.DefaultWorkers)
	v.SetDefault(cfgKeyConnectRetries, types.DefaultConnectRetries)
	v.SetDefault(cfgKeyBusyTimeout, types.DefaultBusyTimeout)
	v.SetDefault(cfgKeyLogLevel, "warn")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(paths.ConfigFile(configDir))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// bridgeConfig builds the bridge configuration from v with dataDir as the
// resolved data directory.
func bridgeConfig(v *viper.Viper, dataDir string) (types.Config, error) {
	cfg := types.Config{
		Driver:         v.GetString(cfgKeyDriver),
		DataDir:        dataDir,
		Async:          v.GetBool(cfgKeyAsync),
		Workers:        v.GetInt(cfgKeyWorkers),
		ConnectRetries: v.GetInt(cfgKeyConnectRetries),
		BusyTimeout:    v.GetDuration(cfgKeyBusyTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// writeConfigIfMissing writes the default config.yaml into path unless a
// file is already there. It reports whether it wrote one.
func writeConfigIfMissing(path, dataDir string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(defaultFileConfig(dataDir))
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	header := "# websql configuration; every key may be overridden by " + envPrefix + "_<KEY>.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
