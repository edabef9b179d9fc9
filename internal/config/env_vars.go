package config

import (
	"fmt"
	"strings"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	IsProduction() bool
}

type EnvVars struct {
	Port    string `yaml:"port" env:"PORT" env-default:"3000"`
	AppName string `yaml:"app_name" env:"APP_NAME" env-default:"Dashboard"`
	Env     string `yaml:"env" env:"ENV" env-default:"DEV"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "3000"
	}
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) IsProduction() bool {
	switch strings.ToLower(e.GetEnv()) {
	case "prod", "production":
		return true
	}
	return false
}
