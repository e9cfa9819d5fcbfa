package config

import (
	"fmt"
	"time"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/spf13/viper"
	"k8s.io/utils/strings/slices"
)

var imageSources = []string{"auto", "daemon", "remote"}

type Config struct {
	ListenAddr       string        `mapstructure:"listenAddr"`
	BuildConcurrency int           `mapstructure:"buildConcurrency"`
	BuildTimeout     time.Duration `mapstructure:"buildTimeout"`
	ContextDir       string        `mapstructure:"contextDir"`
	DescriptorFile   string        `mapstructure:"descriptorFile"`
	ImageSource      string        `mapstructure:"imageSource"`
	VerifyCacheTTL   time.Duration `mapstructure:"verifyCacheTTL"`
	ProbeTarget      string        `mapstructure:"probeTarget"`
	ProbeReadiness   bool          `mapstructure:"probeReadiness"`
	AppHost          string        `mapstructure:"appHost"`
	AppPort          string        `mapstructure:"appPort"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("imagebuild")
	viper.SetConfigType("json")

	viper.SetDefault("listenAddr", ":8080")
	viper.SetDefault("buildConcurrency", 1)
	viper.SetDefault("buildTimeout", 15*time.Minute)
	viper.SetDefault("contextDir", ".")
	viper.SetDefault("imageSource", "auto")
	viper.SetDefault("verifyCacheTTL", 10*time.Minute)

	// container-start overrides of the service settings
	_ = viper.BindEnv("appHost", domain.EnvAppHost)
	_ = viper.BindEnv("appPort", domain.EnvAppPort)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}
	if !slices.Contains(imageSources, config.ImageSource) {
		err = fmt.Errorf("imageSource %q must be one of %v", config.ImageSource, imageSources)
	}
	return
}

// Overrides returns the runtime env overrides carried by the configuration
func (c Config) Overrides() map[string]string {
	overrides := map[string]string{}
	if c.AppHost != "" {
		overrides[domain.EnvAppHost] = c.AppHost
	}
	if c.AppPort != "" {
		overrides[domain.EnvAppPort] = c.AppPort
	}
	return overrides
}

// ApplyOverrides returns d with the configured overrides; the exposed port
// follows APP_PORT
func (c Config) ApplyOverrides(d domain.Descriptor) (domain.Descriptor, error) {
	return d.WithOverrides(c.Overrides())
}

// WatchTarget is the URL the watchdog polls, empty when no target is set
func (c Config) WatchTarget(d domain.Descriptor) (string, error) {
	if c.ProbeTarget == "" {
		return "", nil
	}
	return d.WatchURL(c.ProbeTarget, c.ProbeReadiness)
}
