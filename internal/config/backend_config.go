package config

import (
	"strings"
	"time"
)

type BackendConfig interface {
	GetBackendURL() string
	GetAuthTimeout() time.Duration
	GetMaxAuthRetries() int
}

// Backend describes the remote management backend and its auth endpoints.
type Backend struct {
	URL            string        `yaml:"url" env:"NEXT_PUBLIC_MANAGEMENT_BACKEND_URL" env-default:"http://localhost:8080"`
	AuthTimeout    time.Duration `yaml:"auth_timeout" env:"AUTH_TIMEOUT" env-default:"10s"`
	MaxAuthRetries int           `yaml:"max_auth_retries" env:"MAX_AUTH_RETRIES" env-default:"3"`
}

var _ BackendConfig = Backend{}

func (b Backend) GetBackendURL() string {
	if b.URL == "" {
		return "http://localhost:8080"
	}
	return strings.TrimRight(b.URL, "/")
}

func (b Backend) GetAuthTimeout() time.Duration {
	if b.AuthTimeout <= 0 {
		return 10 * time.Second
	}
	return b.AuthTimeout
}

func (b Backend) GetMaxAuthRetries() int {
	if b.MaxAuthRetries <= 0 {
		return 3
	}
	return b.MaxAuthRetries
}
