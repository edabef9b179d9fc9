package config

import "time"

type CookieConfig interface {
	GetSelectionCookieMaxAge() time.Duration
}

type Cookies struct {
	SelectionMaxAge time.Duration `yaml:"selection_max_age" env:"SELECTION_COOKIE_MAX_AGE" env-default:"168h"`
}

var _ CookieConfig = Cookies{}

func (c Cookies) GetSelectionCookieMaxAge() time.Duration {
	return c.SelectionMaxAge
}
