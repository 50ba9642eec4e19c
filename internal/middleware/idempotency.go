package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tapcard/tapcard-api/internal/pkg/logger"
	"github.com/tapcard/tapcard-api/internal/pkg/response"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	idempotencyKeyPrefix = "idem:"
	idempotencyTTL       = 24 * time.Hour
	idempotencyLockTTL   = 60 * time.Second
	idempotencyInFlight  = "in_flight"
)

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// IdempotencyStore holds in-flight markers and stored responses
type IdempotencyStore interface {
	// Acquire sets key to the in-flight marker unless it exists
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type redisIdempotencyStore struct {
	rdb *redis.Client
}

// NewRedisIdempotencyStore stores idempotency records in Redis
func NewRedisIdempotencyStore(rdb *redis.Client) IdempotencyStore {
	return &redisIdempotencyStore{rdb: rdb}
}

func (s *redisIdempotencyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idempotencyInFlight, ttl).Result()
}

func (s *redisIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.rdb.Get(ctx, key).Bytes()
}

func (s *redisIdempotencyStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *redisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped per authenticated account. Requests without the header pass through.
func Idempotency(rdb *redis.Client) func(http.Handler) http.Handler {
	if rdb == nil {
		return IdempotencyWithStore(nil)
	}
	return IdempotencyWithStore(NewRedisIdempotencyStore(rdb))
}

// IdempotencyWithStore is Idempotency over any store; a nil store passes everything through
func IdempotencyWithStore(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			storeKey := idempotencyKeyPrefix + GetAccountID(ctx).String() + ":" + key

			acquired, err := store.Acquire(ctx, storeKey, idempotencyLockTTL)
			if err != nil {
				logger.FromContext(ctx).Error().Err(err).Str("key", key).Msg("Idempotency store unavailable")
				next.ServeHTTP(w, r)
				return
			}

			if !acquired {
				raw, err := store.Get(ctx, storeKey)
				if err != nil || string(raw) == idempotencyInFlight {
					response.Conflict(w, "A request with this Idempotency-Key is already in progress")
					return
				}

				var cached cachedResponse
				if err := json.Unmarshal(raw, &cached); err != nil {
					logger.FromContext(ctx).Error().Err(err).Str("key", key).Msg("Corrupt idempotency record")
					response.InternalError(w)
					return
				}

				logger.FromContext(ctx).Info().Str("key", key).Msg("Idempotency hit, replaying stored response")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Hit", "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Only a plain 500 releases the key. A 502 may follow a ledger or
			// provider call that committed, so it is stored and replayed.
			if rec.status == http.StatusInternalServerError {
				if err := store.Release(ctx, storeKey); err != nil {
					logger.FromContext(ctx).Error().Err(err).Str("key", key).Msg("Failed to release idempotency key")
				}
				return
			}

			payload, _ := json.Marshal(cachedResponse{Status: rec.status, Body: rec.body.Bytes()})
			if err := store.Save(ctx, storeKey, payload, idempotencyTTL); err != nil {
				logger.FromContext(ctx).Error().Err(err).Str("key", key).Msg("Failed to save idempotency record")
			}
		})
	}
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
