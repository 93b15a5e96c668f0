// Package seen persists the set of item keys already processed by earlier
// runs. A key recorded here is never enriched or delivered again.
package seen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
	"github.com/RobinCoderZhao/newsdigest/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// Store is the persistent seen set.
type Store interface {
	// Has reports whether key was recorded by any earlier successful Record.
	Has(ctx context.Context, key string) (bool, error)

	// Record adds key to the set. Recording a present key is a no-op.
	Record(ctx context.Context, key string) error

	Close() error
}

// Lister is implemented by stores that can enumerate their contents.
type Lister interface {
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, limit int) ([]news.SeenRecord, error)
}

// Op names the store operation that failed.
type Op string

const (
	OpHas    Op = "has"
	OpRecord Op = "record"
	OpList   Op = "list"
)

// Error reports an unavailable or failing store.
type Error struct {
	Op  Op
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("seen store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("seen store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsReadError reports whether err is a failed membership check.
func IsReadError(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Op == OpHas
}

// IsWriteError reports whether err is a failed record.
func IsWriteError(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Op == OpRecord
}

// Driver selects the store backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverRedis    Driver = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver        Driver `yaml:"driver" env:"STORE_DRIVER"`
	DSN           string `yaml:"dsn" env:"CACHE_DB"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// Open returns the store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(string(cfg.Driver))) {
	case DriverSQLite, "":
		db, err := storage.Open(ctx, storage.Config{Driver: storage.SQLite, DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return NewSQLStore(ctx, db)
	case DriverPostgres:
		db, err := storage.Open(ctx, storage.Config{Driver: storage.Postgres, DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return NewSQLStore(ctx, db)
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported seen store driver: %s", cfg.Driver)
	}
}
