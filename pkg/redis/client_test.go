package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/libraryhub-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i := int64(1); i <= 2; i++ {
		w, err := client.FixedWindowAllow(ctx, "login:ip:1.2.3.4", 2, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !w.Allowed || w.Count != i {
			t.Fatalf("hit %d: allowed=%v count=%d", i, w.Allowed, w.Count)
		}
	}
	if len(mock.expireCalls) != 1 || mock.expireCalls[0].ttl != time.Minute {
		t.Fatalf("expected a single expire on the first hit, got %+v", mock.expireCalls)
	}

	mock.ttl = 20 * time.Second
	w, err := client.FixedWindowAllow(ctx, "login:ip:1.2.3.4", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Allowed {
		t.Fatalf("expected third hit to be blocked")
	}
	if w.ResetIn != 20*time.Second {
		t.Fatalf("expected reset from PTTL, got %s", w.ResetIn)
	}
}

func TestFixedWindowAllowFallsBackToWindow(t *testing.T) {
	mock := newMockCmdable()
	mock.incr["library:rate_limit:x"] = 5
	mock.ttl = -1
	client := &Client{store: mock}

	w, err := client.FixedWindowAllow(context.Background(), "x", 1, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Allowed || w.ResetIn != time.Minute {
		t.Fatalf("unexpected window %+v", w)
	}
}

func TestFixedWindowAllowDisabledLimit(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}

	w, err := client.FixedWindowAllow(context.Background(), "login:ip", 0, time.Minute)
	if err != nil || !w.Allowed {
		t.Fatalf("zero limit should always allow, window=%+v err=%v", w, err)
	}
	if len(mock.incr) != 0 {
		t.Fatalf("zero limit should not touch counters")
	}
}

func TestGetReportsMiss(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.AccessSessionKey("jti-1")

	if err := client.Set(ctx, key, "user-1", 10*time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil || got != "user-1" {
		t.Fatalf("expected stored user, got %q err %v", got, err)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after delete, got %v", err)
	}

	created, err := client.SetNX(ctx, key, "a", time.Minute)
	if err != nil || !created {
		t.Fatalf("first SetNX should create, created=%v err=%v", created, err)
	}
	created, _ = client.SetNX(ctx, key, "b", time.Minute)
	if created {
		t.Fatalf("second SetNX must not overwrite")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("scope", "id"): "library:idempotency:scope:id",
		client.RateLimitKey("scope"):         "library:rate_limit:scope",
		client.AccessSessionKey("jti"):       "library:session:access:jti",
		client.IdempotencyKey(" ", "id"):     "library:idempotency:id",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 2})
	if err != nil || opts.Addr != "cache:6379" || opts.DB != 2 {
		t.Fatalf("address config not applied: %+v err=%v", opts, err)
	}

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if _, err := client.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if _, err := client.FixedWindowAllow(context.Background(), "s", 1, time.Second); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	ttl         time.Duration
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) PTTL(context.Context, string) *redis.DurationCmd {
	return redis.NewDurationResult(m.ttl, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
