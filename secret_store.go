package emberauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose distinguishes the three ephemeral-secret flows sharing the store.
type Purpose string

const (
	// PurposeOTP is a numeric one-time passcode challenge.
	PurposeOTP Purpose = "otp"
	// PurposeMagic is a magic-link secret.
	PurposeMagic Purpose = "magic"
	// PurposeDelete is a deletion-protection code.
	PurposeDelete Purpose = "delete"
)

// tombstoneTTL is the collapsed lifetime applied after a successful
// verification. The entry lingers for this grace period and then expires,
// so a secret never verifies twice.
const tombstoneTTL = time.Second

// secretStore keeps argon2id hashes of outstanding one-time secrets in an
// expiring key-value store, keyed by (app, purpose, subject). Each new
// challenge for the same key overwrites the previous one.
type secretStore struct {
	redis  *redis.Client
	prefix string
}

func newSecretStore(redisClient *redis.Client, prefix string) *secretStore {
	return &secretStore{redis: redisClient, prefix: prefix}
}

func (s *secretStore) key(appID string, purpose Purpose, subject string) string {
	return s.prefix + ":" + appID + ":" + string(purpose) + ":" + subject
}

// Save stores the hash of a freshly issued secret with the challenge TTL.
func (s *secretStore) Save(ctx context.Context, appID string, purpose Purpose, subject, hash string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(appID, purpose, subject), hash, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecretStoreUnavailable, err)
	}
	return nil
}

// Get fetches the stored hash. A missing key returns ok=false with no
// error; expired and never-issued are indistinguishable to callers.
func (s *secretStore) Get(ctx context.Context, appID string, purpose Purpose, subject string) (hash string, ok bool, err error) {
	val, err := s.redis.Get(ctx, s.key(appID, purpose, subject)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrSecretStoreUnavailable, err)
	}
	return val, true, nil
}

// Collapse shrinks the entry's TTL to the tombstone grace after a
// successful verification.
func (s *secretStore) Collapse(ctx context.Context, appID string, purpose Purpose, subject string) error {
	if err := s.redis.Expire(ctx, s.key(appID, purpose, subject), tombstoneTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecretStoreUnavailable, err)
	}
	return nil
}
