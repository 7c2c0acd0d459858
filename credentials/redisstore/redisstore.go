// Package redisstore keeps the credential store in Redis, for headless deployments whose
// session must outlive the process.
//
// Paired writes are applied in one MULTI/EXEC transaction, so other readers of the
// prefix never see half a session. Refresh is single-flight within one process only:
// with a backend that rotates refresh tokens, only one process should own the session
// under a given prefix.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/campus-auth-client/credentials"
)

const defaultOpTimeout = 2 * time.Second

var _ credentials.BatchBackend = (*Backend)(nil)

type Backend struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
	log       zerolog.Logger
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// OpTimeout bounds every Redis round trip. Zero means two seconds.
	OpTimeout time.Duration
}

// New connects and pings Redis. An unreachable server is reported here rather than
// degraded silently, since later operations cannot return errors.
func New(ctx context.Context, opts Options, log zerolog.Logger) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	b := NewWithClient(client, opts.Prefix, log)
	if opts.OpTimeout > 0 {
		b.opTimeout = opts.OpTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return b, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *redis.Client, prefix string, log zerolog.Logger) *Backend {
	return &Backend{
		client:    client,
		prefix:    prefix,
		opTimeout: defaultOpTimeout,
		log:       log,
	}
}

func (b *Backend) key(k string) string {
	return b.prefix + k
}

func (b *Backend) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opTimeout)
	defer cancel()

	val, err := b.client.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		b.log.Error().Err(err).Str("key", key).Msg("redis get")
		return "", false
	}
	return val, true
}

func (b *Backend) Set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opTimeout)
	defer cancel()

	if err := b.client.Set(ctx, b.key(key), value, 0).Err(); err != nil {
		b.log.Error().Err(err).Str("key", key).Msg("redis set")
	}
}

func (b *Backend) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opTimeout)
	defer cancel()

	if err := b.client.Del(ctx, b.key(key)).Err(); err != nil {
		b.log.Error().Err(err).Str("key", key).Msg("redis del")
	}
}

// Apply runs ops in one transaction.
func (b *Backend) Apply(ops []credentials.Op) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opTimeout)
	defer cancel()

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.Del(ctx, b.key(op.Key))
			} else {
				pipe.Set(ctx, b.key(op.Key), op.Value, 0)
			}
		}
		return nil
	})
	if err != nil {
		b.log.Error().Err(err).Int("ops", len(ops)).Msg("redis transaction")
	}
}

func (b *Backend) Close() error {
	return b.client.Close()
}
