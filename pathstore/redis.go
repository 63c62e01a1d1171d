package pathstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
)

const redisKeyPrefix = "pce:path:"

type RedisConfig struct {
	Address     string `toml:"address"`
	Password    string `toml:"password"`
	DB          int    `toml:"db"`
	MaxIdle     int    `toml:"max_idle"`
	IdleTimeout int    `toml:"idle_timeout"` // seconds
	TTL         int    `toml:"ttl"`          // seconds, 0 keeps paths forever
}

// NewRedisPool dials lazily; the first command surfaces connection errors.
func NewRedisPool(cfg RedisConfig) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		IdleTimeout: time.Duration(cfg.IdleTimeout) * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Address,
				redis.DialPassword(cfg.Password),
				redis.DialDatabase(cfg.DB))
		},
	}
}

type RedisStore struct {
	pool *redis.Pool
	ttl  time.Duration
}

func NewRedisStore(pool *redis.Pool, ttl time.Duration) *RedisStore {
	return &RedisStore{pool: pool, ttl: ttl}
}

func (s *RedisStore) conn(ctx context.Context) (redis.Conn, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get redis connection: %w", err)
	}
	return conn, nil
}

func (s *RedisStore) GetPath(ctx context.Context, serviceName string) ([]string, bool, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", redisKeyPrefix+serviceName))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get path of %s: %w", serviceName, err)
	}
	nodes, err := decode(serviceName, data)
	if err != nil {
		return nil, false, err
	}
	return nodes, true, nil
}

func (s *RedisStore) PutPath(ctx context.Context, serviceName string, nodes []string) error {
	data, err := encode(serviceName, nodes)
	if err != nil {
		return err
	}
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := redis.Args{}.Add(redisKeyPrefix + serviceName).Add(data)
	if s.ttl > 0 {
		args = args.Add("EX", int(s.ttl.Seconds()))
	}
	if _, err := conn.Do("SET", args...); err != nil {
		return fmt.Errorf("failed to put path of %s: %w", serviceName, err)
	}
	log.Infof("PutPath: service=%s, nodes=%d, ttl=%v", serviceName, len(nodes), s.ttl)
	return nil
}

func (s *RedisStore) DeletePath(ctx context.Context, serviceName string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", redisKeyPrefix+serviceName); err != nil {
		return fmt.Errorf("failed to delete path of %s: %w", serviceName, err)
	}
	return nil
}
