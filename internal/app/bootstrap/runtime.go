// Package bootstrap wires shared infrastructure so the binaries stay thin.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/careloop/clinic-concierge/internal/clinic"
	appconfig "github.com/careloop/clinic-concierge/internal/config"
	"github.com/careloop/clinic-concierge/pkg/fieldcrypt"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildPostgres opens the Postgres pool used for webhook mappings and the
// approval ledger. Returns nil when DATABASE_URL is unset.
func BuildPostgres(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return db, nil
}

// BuildClinicStore returns the encrypted clinic config store when Redis is
// available.
func BuildClinicStore(redisClient *redis.Client, cfg *appconfig.Config) (*clinic.Store, error) {
	if redisClient == nil {
		return nil, nil
	}
	if strings.TrimSpace(cfg.FieldCryptSecret) == "" {
		return nil, fmt.Errorf("bootstrap: FIELD_CRYPT_SECRET is required when redis is configured")
	}
	enc, err := fieldcrypt.Derive([]byte(cfg.FieldCryptSecret), "clinic-credentials")
	if err != nil {
		return nil, fmt.Errorf("bootstrap: derive field encryptor: %w", err)
	}
	return clinic.NewStore(redisClient, enc), nil
}
