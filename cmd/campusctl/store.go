package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/credentials/filestore"
	"github.com/jrsteele09/campus-auth-client/credentials/memstore"
	"github.com/jrsteele09/campus-auth-client/credentials/redisstore"
	"github.com/jrsteele09/campus-auth-client/internal/config"
)

// openBackend returns the configured credential backend and a func releasing it.
func openBackend(ctx context.Context, c config.Config, log zerolog.Logger) (credentials.Backend, func(), error) {
	switch c.GetStoreBackend() {
	case config.StoreBackendRedis:
		b, err := redisstore.New(ctx, redisstore.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
			Prefix:   c.GetRedisPrefix(),
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening redis credential store: %w", err)
		}
		return b, func() { _ = b.Close() }, nil

	case config.StoreBackendMemory:
		log.Warn().Msg("memory credential store: the session ends with this process")
		return memstore.New(), func() {}, nil

	default:
		folder := filepath.Join(c.GetDataFolder(), "credentials")
		b, err := filestore.New(folder, log)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	}
}
