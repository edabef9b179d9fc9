package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

const configPathEnvVar = "CONFIG_PATH"

type Config interface {
	EnvConfig
	BackendConfig
	SessionConfig
	CookieConfig
	CorsConfig
	TokenConfig
}

type mainConfig struct {
	EnvVars `yaml:"env"`
	Backend `yaml:"backend"`
	Session `yaml:"session"`
	Cookies `yaml:"cookies"`
	Cors    `yaml:"cors"`
	Tokens  `yaml:"tokens"`
}

// New loads the configuration from the environment only.
func New() (Config, error) {
	return Load("")
}

// Load reads a YAML file (explicit path, then CONFIG_PATH) and overlays the
// environment. With neither file available the environment alone is used.
func Load(path string) (Config, error) {
	var c mainConfig

	if path == "" {
		path = os.Getenv(configPathEnvVar)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &c); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return c, nil
	}

	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	return c, nil
}
