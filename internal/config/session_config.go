package config

import "time"

type SessionConfig interface {
	GetSessionSecret() string
	GetSessionCacheTTL() time.Duration
	GetRefreshSkew() time.Duration
	GetAccessTokenLifetime() time.Duration
	GetSessionIdleTimeout() time.Duration
}

type Session struct {
	Secret              string        `yaml:"secret" env:"SESSION_SECRET"`
	CacheTTL            time.Duration `yaml:"cache_ttl" env:"SESSION_CACHE_TTL" env-default:"30s"`
	RefreshSkew         time.Duration `yaml:"refresh_skew" env:"REFRESH_SKEW" env-default:"5m"`
	AccessTokenLifetime time.Duration `yaml:"access_token_lifetime" env:"ACCESS_TOKEN_LIFETIME" env-default:"15m"`
	IdleTimeout         time.Duration `yaml:"idle_timeout" env:"SESSION_IDLE_TIMEOUT" env-default:"720h"`
}

var _ SessionConfig = Session{}

func (s Session) GetSessionSecret() string {
	return s.Secret
}

func (s Session) GetSessionCacheTTL() time.Duration {
	return s.CacheTTL
}

func (s Session) GetRefreshSkew() time.Duration {
	return s.RefreshSkew
}

func (s Session) GetAccessTokenLifetime() time.Duration {
	return s.AccessTokenLifetime
}

func (s Session) GetSessionIdleTimeout() time.Duration {
	return s.IdleTimeout
}
