package momo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenCacheCollapsesConcurrentRefreshes(t *testing.T) {
	var calls int32
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "tok", time.Now().Add(time.Hour), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok, err := cache.get(context.Background()); err != nil || tok != "tok" {
				t.Errorf("unexpected token %q err %v", tok, err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single refresh, got %d", got)
	}
}

func TestTokenCacheRefreshesNearExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var calls int
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		calls++
		return "tok", now.Add(5 * time.Minute), nil
	})
	cache.now = func() time.Time { return now }

	_, _ = cache.get(context.Background())
	_, _ = cache.get(context.Background())
	if calls != 1 {
		t.Fatalf("expected cached token to be reused, got %d fetches", calls)
	}

	// 30s before expiry is inside the refresh window
	now = now.Add(4*time.Minute + 30*time.Second)
	_, _ = cache.get(context.Background())
	if calls != 2 {
		t.Fatalf("expected refresh inside window, got %d fetches", calls)
	}

	cache.invalidate()
	_, _ = cache.get(context.Background())
	if calls != 3 {
		t.Fatalf("expected refresh after invalidate, got %d fetches", calls)
	}
}

func TestTokenCacheRefreshSurvivesCancelledCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	cache := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", time.Time{}, err
		}
		return "tok", time.Now().Add(time.Hour), nil
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.get(ctxA)
		errA <- err
	}()
	<-started

	type result struct {
		tok string
		err error
	}
	resB := make(chan result, 1)
	go func() {
		tok, err := cache.get(context.Background())
		resB <- result{tok, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}

	close(release)
	got := <-resB
	if got.err != nil || got.tok != "tok" {
		t.Fatalf("live caller: expected token, got %q err %v", got.tok, got.err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single refresh, got %d", n)
	}
}
