package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var errNoRecord = errors.New("no record")

type memIdempotencyStore struct {
	mu       sync.Mutex
	records  map[string][]byte
	released []string
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{records: map[string][]byte{}}
}

func (m *memIdempotencyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = []byte(idempotencyInFlight)
	return true, nil
}

func (m *memIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[key]
	if !ok {
		return nil, errNoRecord
	}
	return v, nil
}

func (m *memIdempotencyStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = value
	return nil
}

func (m *memIdempotencyStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	m.released = append(m.released, key)
	return nil
}

func idempotentRequest(accountID uuid.UUID, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments/tap", nil)
	req.Header.Set("Idempotency-Key", key)
	return req.WithContext(context.WithValue(req.Context(), AccountIDKey, accountID))
}

func countingHandler(status int, body string, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestIdempotencyPassesThroughWithoutStore(t *testing.T) {
	calls := 0
	h := Idempotency(nil)(countingHandler(http.StatusCreated, `{}`, &calls))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, idempotentRequest(uuid.New(), "tap-1"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice without a store, ran %d", calls)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	h := IdempotencyWithStore(store)(countingHandler(http.StatusCreated, `{"ok":true}`, &calls))
	account := uuid.New()

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentRequest(account, "tap-1"))
	if first.Code != http.StatusCreated || first.Header().Get("X-Idempotency-Hit") != "" {
		t.Fatalf("unexpected first response %d %v", first.Code, first.Header())
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, idempotentRequest(account, "tap-1"))
	if second.Code != http.StatusCreated || second.Body.String() != `{"ok":true}` {
		t.Fatalf("expected replayed 201, got %d %q", second.Code, second.Body.String())
	}
	if second.Header().Get("X-Idempotency-Hit") != "true" {
		t.Fatal("expected X-Idempotency-Hit on replay")
	}
	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d", calls)
	}
}

func TestIdempotencyKeysAreScopedPerAccount(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	h := IdempotencyWithStore(store)(countingHandler(http.StatusCreated, `{}`, &calls))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(uuid.New(), "tap-1"))
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(uuid.New(), "tap-1"))
	if calls != 2 {
		t.Fatalf("expected both accounts to run, ran %d", calls)
	}
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	store := newMemIdempotencyStore()
	account := uuid.New()
	store.records[idempotencyKeyPrefix+account.String()+":tap-1"] = []byte(idempotencyInFlight)

	calls := 0
	h := IdempotencyWithStore(store)(countingHandler(http.StatusCreated, `{}`, &calls))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(account, "tap-1"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatalf("handler must not run while the key is in flight, ran %d", calls)
	}
}

func TestIdempotencyReleaseOnlyOnInternalError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantCalls   int
		wantRelease bool
	}{
		{"internal error releases the key", http.StatusInternalServerError, 2, true},
		{"bad gateway is kept and replayed", http.StatusBadGateway, 1, false},
		{"client error is kept and replayed", http.StatusUnprocessableEntity, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemIdempotencyStore()
			calls := 0
			h := IdempotencyWithStore(store)(countingHandler(tt.status, `{"success":false}`, &calls))
			account := uuid.New()

			for i := 0; i < 2; i++ {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, idempotentRequest(account, "tap-1"))
				if rec.Code != tt.status {
					t.Fatalf("attempt %d: expected %d, got %d", i+1, tt.status, rec.Code)
				}
			}
			if calls != tt.wantCalls {
				t.Fatalf("expected handler to run %d times, ran %d", tt.wantCalls, calls)
			}
			if released := len(store.released) > 0; released != tt.wantRelease {
				t.Fatalf("expected release=%v, got %v", tt.wantRelease, released)
			}
		})
	}
}

func TestRedisIdempotencyStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	store := NewRedisIdempotencyStore(rdb)
	key := "idem-test:" + uuid.NewString()
	defer rdb.Del(ctx, key)

	ok, err := store.Acquire(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire: %v %v", ok, err)
	}
	if ok, _ := store.Acquire(ctx, key, time.Minute); ok {
		t.Fatal("second Acquire must fail while the key exists")
	}
	if err := store.Save(ctx, key, []byte(`{"status":201}`), time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := store.Get(ctx, key)
	if err != nil || string(raw) != `{"status":201}` {
		t.Fatalf("Get: %q %v", raw, err)
	}
	if err := store.Release(ctx, key); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := store.Acquire(ctx, key, time.Minute); !ok {
		t.Fatal("Acquire after Release must succeed")
	}
}
