// Package redis keeps verification tokens in Redis so that expiry is
// handled by key TTLs instead of the primary store.
package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "verification:token:"

// ErrTokenExpired is returned when a token is saved after its lifetime has
// already run out; nothing is written.
var ErrTokenExpired = stderrors.New("verification token already expired")

type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, addr, pass string, db int) (*TokenStore, error) {
	const op = "redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(client), nil
}

func NewWithClient(client *redis.Client) *TokenStore {
	return &TokenStore{client: client, ttl: models.VerificationTokenTTL}
}

func (s *TokenStore) Close() error {
	return s.client.Close()
}

func (s *TokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveVerificationToken stores the token hash and sets its expiry to the
// remaining lifetime measured from CreatedAt. A token with no lifetime left
// is rejected with ErrTokenExpired.
func (s *TokenStore) SaveVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	const op = "redis.SaveVerificationToken"

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	ttl := s.ttl - time.Since(token.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	key := keyPrefix + token.Token
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":    token.UserID,
		"created_at": token.CreatedAt.UnixNano(),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *TokenStore) GetVerificationToken(ctx context.Context, token string) (*models.VerificationToken, error) {
	const op = "redis.GetVerificationToken"

	var fields struct {
		UserID    string `redis:"user_id"`
		CreatedAt int64  `redis:"created_at"`
	}
	res := s.client.HGetAll(ctx, keyPrefix+token)
	if err := res.Err(); err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(res.Val()) == 0 {
		return nil, errors.ErrTokenNotFound
	}
	if err := res.Scan(&fields); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.VerificationToken{
		Token:     token,
		UserID:    fields.UserID,
		CreatedAt: time.Unix(0, fields.CreatedAt).UTC(),
	}, nil
}
