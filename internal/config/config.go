package config

import (
	"sync"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	ClientConfig
	StoreConfig
	StubConfig
}

type mainConfig struct {
	EnvVars
	Client
	Store
	Stub
}

var loadDotEnv sync.Once

// New returns the environment backed configuration. A .env file in the working
// directory is loaded once; variables already set in the environment win.
func New() Config {
	loadDotEnv.Do(func() {
		_ = godotenv.Load()
	})
	return mainConfig{}
}
