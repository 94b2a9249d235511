package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/careloop/clinic-concierge/pkg/fieldcrypt"
)

// ErrClinicNotFound reports that a healthy store has no configuration for the
// clinic. That is an addressing error, distinct from a store outage, and
// callers surface it rather than degrading.
var ErrClinicNotFound = errors.New("clinic: config not found")

// Store provides persistence for clinic configurations. Booking API keys are
// encrypted before they reach Redis.
type Store struct {
	redis *redis.Client
	enc   *fieldcrypt.Encryptor
}

// NewStore creates a new clinic config store. The encryptor may be nil, in
// which case credentials are stored as-is (development only).
func NewStore(redisClient *redis.Client, enc *fieldcrypt.Encryptor) *Store {
	if redisClient == nil {
		panic("clinic: redis client is required")
	}
	return &Store{redis: redisClient, enc: enc}
}

func (s *Store) key(tenantID, clinicID string) string {
	return fmt.Sprintf("clinic:config:%s:%s", tenantID, clinicID)
}

// Get retrieves clinic config. An unconfigured clinic returns
// ErrClinicNotFound.
func (s *Store) Get(ctx context.Context, tenantID, clinicID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID, clinicID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("clinic: config %s/%s: %w", tenantID, clinicID, ErrClinicNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal config: %w", err)
	}

	if s.enc != nil && cfg.Credentials.APIKey != "" {
		plain, err := s.enc.Decrypt(cfg.Credentials.APIKey)
		if err != nil {
			return nil, fmt.Errorf("clinic: decrypt credentials: %w", err)
		}
		cfg.Credentials.APIKey = plain
	}

	return &cfg, nil
}

// Set saves clinic config, encrypting the booking API key. The passed config
// is not mutated.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	stored := *cfg
	if s.enc != nil && stored.Credentials.APIKey != "" && !fieldcrypt.IsEncrypted(stored.Credentials.APIKey) {
		sealed, err := s.enc.Encrypt(stored.Credentials.APIKey)
		if err != nil {
			return fmt.Errorf("clinic: encrypt credentials: %w", err)
		}
		stored.Credentials.APIKey = sealed
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(cfg.TenantID, cfg.ClinicID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set config: %w", err)
	}

	return nil
}

// SetRegion records a discovered booking-system region so future adapter
// builds skip the probe.
func (s *Store) SetRegion(ctx context.Context, tenantID, clinicID, region string) error {
	cfg, err := s.Get(ctx, tenantID, clinicID)
	if errors.Is(err, ErrClinicNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clinic: set region: %w", err)
	}
	cfg.Credentials.Region = region
	return s.Set(ctx, cfg)
}
