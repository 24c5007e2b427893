package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.CartKey("cust-1")
	if err := client.Set(ctx, key, `{"entries":{}}`, time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != `{"entries":{}}` {
		t.Fatalf("unexpected value %q", got)
	}
	if mock.ttls[key] != time.Hour {
		t.Fatalf("expected ttl to be forwarded, got %v", mock.ttls[key])
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !IsMissing(err) {
		t.Fatalf("expected missing key after delete, got %v", err)
	}
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "k", "first", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "second", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second setnx to be rejected, ok=%v err=%v", ok, err)
	}
	if v, _ := client.Get(ctx, "k"); v != "first" {
		t.Fatalf("value overwritten: %q", v)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail without a store")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without raw client should be a no-op: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "sf:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.CartKey("cust-7"); got != "sf:cart:cust-7" {
		t.Fatalf("unexpected cart key %s", got)
	}
	if got := client.CartKey(""); got != "sf:cart" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestNamespacedKeys(t *testing.T) {
	client := &Client{namespace: namespaceOf(" shop: ")}
	if got := client.CartKey("cust-7"); got != "shop:cart:cust-7" {
		t.Fatalf("unexpected cart key %s", got)
	}
	if got := namespaceOf(""); got != defaultNamespace {
		t.Fatalf("expected default namespace, got %s", got)
	}
}

func TestTouchExtendsTTL(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.CartKey("cust-1")
	if err := client.Set(ctx, key, "{}", time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := client.Touch(ctx, key, 48*time.Hour); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if mock.ttls[key] != 48*time.Hour {
		t.Fatalf("expected ttl to be extended, got %v", mock.ttls[key])
	}
	if err := client.Touch(ctx, key, 0); err != nil {
		t.Fatalf("zero ttl touch should be a no-op: %v", err)
	}
	if mock.ttls[key] != 48*time.Hour {
		t.Fatalf("zero ttl touch changed expiry to %v", mock.ttls[key])
	}
}

func TestOptions(t *testing.T) {
	if _, err := options(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}

	addrOpts, err := options(config.RedisConfig{Address: "localhost:6380", DB: 2, PoolSize: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addrOpts.Addr != "localhost:6380" || addrOpts.DB != 2 || addrOpts.PoolSize != 4 {
		t.Fatalf("unexpected options %+v", addrOpts)
	}

	opts, err := options(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if _, ok := m.data[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
