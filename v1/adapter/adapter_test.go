package adapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/mirkobrombin/go-coalesce/v1/adapter"
)

func TestInMemoryStoreReadWriteKeys(t *testing.T) {
	s := adapter.NewInMemoryStore[string]()
	ctx := context.Background()
	if _, ok, err := s.Read(ctx, "foo"); err != nil || ok {
		t.Fatalf("Read: expected not found, got ok=%v err=%v", ok, err)
	}
	if err := s.Write(ctx, "foo", adapter.ValueEntry("bar"), time.Minute); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if e, ok, err := s.Read(ctx, "foo"); err != nil || !ok || e.Null || e.Value != "bar" {
		t.Fatalf("Read: expected bar, got %+v ok=%v err=%v", e, ok, err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "foo" {
		t.Fatalf("Keys: expected [foo], got %v", keys)
	}
	if err := s.Delete(ctx, "foo"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Read(ctx, "foo"); ok {
		t.Fatal("Delete: key still present")
	}
}

func TestInMemoryStoreNullEntry(t *testing.T) {
	s := adapter.NewInMemoryStore[int]()
	ctx := context.Background()
	if err := s.Write(ctx, "n", adapter.NullEntry[int](), time.Minute); err != nil {
		t.Fatalf("Write: %v", err)
	}
	e, ok, err := s.Read(ctx, "n")
	if err != nil || !ok || !e.Null {
		t.Fatalf("expected cached null, got %+v ok=%v err=%v", e, ok, err)
	}
}

func TestInMemoryStoreExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := adapter.NewInMemoryStore[string](adapter.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	_ = s.Write(ctx, "k", adapter.ValueEntry("v"), time.Second)
	_ = s.Write(ctx, "forever", adapter.ValueEntry("v"), 0)

	exp, ok := s.ExpiresAt("k")
	if !ok || !exp.Equal(now.Add(time.Second)) {
		t.Fatalf("unexpected expiry %v ok=%v", exp, ok)
	}
	now = now.Add(time.Second)
	if _, ok, _ := s.Read(ctx, "k"); ok {
		t.Fatal("entry should be expired")
	}
	if _, ok, _ := s.Read(ctx, "forever"); !ok {
		t.Fatal("entry without ttl should not expire")
	}
}

func TestInMemoryStoreCancelledContext(t *testing.T) {
	s := adapter.NewInMemoryStore[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Write(ctx, "k", adapter.ValueEntry("v"), time.Minute); err == nil {
		t.Fatal("expected context error on write")
	}
	if _, _, err := s.Read(ctx, "k"); err == nil {
		t.Fatal("expected context error on read")
	}
}
