package config

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// CustomConfigLocation is the flag holding additional configuration files.
	CustomConfigLocation = "config"
	// EnvPrefix is prepended to environment variables overriding configuration, e.g. BACKUPMON_WORKER_MAXWORKERS.
	EnvPrefix = "BACKUPMON"
)

// AddConfigFlag registers the repeatable --config flag on flags.
func AddConfigFlag(flags *pflag.FlagSet) {
	flags.StringSlice(CustomConfigLocation, []string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
}

// LoadConfig reads config.yaml from defaultPath, merges each override file in order, then applies environment
// overrides before decoding into config.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "error reading base config from %s", defaultPath)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		if overrideConfig == "" {
			continue
		}
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config from %s", overrideConfig)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, CustomHooks...); err != nil {
		return nil, errors.Wrap(err, "error decoding config")
	}
	return v, nil
}
