package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const otpTestPhone = "+905551234567"

func newRedisSessionManager(t *testing.T, ttl time.Duration) (*OTPSessionManager, func(time.Duration)) {
	t.Helper()
	server, client := newRedisClientForTest(t)
	store := NewRedisKVStore(client, "otptest", time.Second)
	return NewOTPSessionManager(store, ttl, 5, bcrypt.MinCost), server.FastForward
}

func TestOTPSessionCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisSessionManager(t, time.Minute)

	id, err := m.Create(ctx, otpTestPhone, "123456")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(id) < 32 {
		t.Fatalf("expected an opaque session id, got %q", id)
	}
	session, ok, err := m.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if session.PhoneNumber != otpTestPhone || session.Attempts != 0 || session.ID != id {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.CodeHash == "123456" {
		t.Fatal("code must not be stored in clear")
	}
	if !m.MatchCode(session, "123456") || m.MatchCode(session, "654321") {
		t.Fatal("code match is wrong")
	}
	resolved, ok, err := m.ResolveSessionID(ctx, otpTestPhone)
	if err != nil || !ok || resolved != id {
		t.Fatalf("phone index: id=%q ok=%v err=%v", resolved, ok, err)
	}
}

func TestOTPSessionCreateReplacesPrior(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisSessionManager(t, time.Minute)

	first, err := m.Create(ctx, otpTestPhone, "111111")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := m.Create(ctx, otpTestPhone, "222222")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, ok, _ := m.Get(ctx, first); ok {
		t.Fatal("expected first session to be gone")
	}
	resolved, ok, _ := m.ResolveSessionID(ctx, otpTestPhone)
	if !ok || resolved != second {
		t.Fatalf("expected index to point at the new session, got %q", resolved)
	}
}

func TestOTPSessionConcurrentCreateLeavesOneLive(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisSessionManager(t, time.Minute)

	ids := make([]string, 10)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.Create(ctx, otpTestPhone, "123456")
			if err != nil {
				t.Errorf("create %d: %v", i, err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	live := 0
	for _, id := range ids {
		if _, ok, _ := m.Get(ctx, id); ok {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected one live session for the phone, got %d", live)
	}
}

func TestOTPSessionReserveAndConsume(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisSessionManager(t, time.Minute)

	id, err := m.Create(ctx, otpTestPhone, "123456")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for want := 1; want <= 6; want++ {
		if n, err := m.ReserveAttempt(ctx, id); err != nil || n != want {
			t.Fatalf("reserve %d: n=%d err=%v", want, n, err)
		}
	}
	ok, err := m.Consume(ctx, id)
	if err != nil || !ok {
		t.Fatalf("consume: ok=%v err=%v", ok, err)
	}
	if ok, _ := m.Consume(ctx, id); ok {
		t.Fatal("a session must be consumed only once")
	}
	if n, _ := m.ReserveAttempt(ctx, id); n != SessionGone {
		t.Fatalf("expected SessionGone after consume, got %d", n)
	}
	if _, ok, _ := m.ResolveSessionID(ctx, otpTestPhone); ok {
		t.Fatal("expected phone index to be removed on consume")
	}
}

func TestOTPSessionExpires(t *testing.T) {
	ctx := context.Background()
	m, advance := newRedisSessionManager(t, 300*time.Second)

	id, err := m.Create(ctx, otpTestPhone, "123456")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	advance(299 * time.Second)
	if _, ok, _ := m.Get(ctx, id); !ok {
		t.Fatal("expected session to be live before ttl")
	}
	advance(2 * time.Second)
	if _, ok, _ := m.Get(ctx, id); ok {
		t.Fatal("expected session to expire")
	}
	if _, ok, _ := m.ResolveSessionID(ctx, otpTestPhone); ok {
		t.Fatal("expected phone index to expire with the session")
	}
	n, err := m.RecordFailedAttempt(ctx, id)
	if err != nil || n != SessionGone {
		t.Fatalf("expected SessionGone, got n=%d err=%v", n, err)
	}
}

func TestOTPSessionAttemptsExhaustDeletes(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisSessionManager(t, time.Minute)

	id, err := m.Create(ctx, otpTestPhone, "123456")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for want := 1; want <= 4; want++ {
		n, err := m.RecordFailedAttempt(ctx, id)
		if err != nil || n != want {
			t.Fatalf("attempt %d: n=%d err=%v", want, n, err)
		}
	}
	session, ok, _ := m.Get(ctx, id)
	if !ok || session.Attempts != 4 {
		t.Fatalf("expected 4 attempts recorded, got %+v", session)
	}
	n, err := m.RecordFailedAttempt(ctx, id)
	if err != nil || n != 5 {
		t.Fatalf("fifth attempt: n=%d err=%v", n, err)
	}
	if _, ok, _ := m.Get(ctx, id); ok {
		t.Fatal("expected session to be deleted at max attempts")
	}
	if _, ok, _ := m.ResolveSessionID(ctx, otpTestPhone); ok {
		t.Fatal("expected phone index to be deleted at max attempts")
	}
}

func TestOTPSessionDeleteKeepsNewerIndex(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisSessionManager(t, time.Minute)

	old, _ := m.Create(ctx, otpTestPhone, "111111")
	newer, err := m.Create(ctx, otpTestPhone, "222222")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// A late cleanup of the replaced session must not drop the new index.
	if err := m.Delete(ctx, old); err != nil {
		t.Fatalf("delete stale: %v", err)
	}
	resolved, ok, _ := m.ResolveSessionID(ctx, otpTestPhone)
	if !ok || resolved != newer {
		t.Fatalf("expected newer index to survive, got %q ok=%v", resolved, ok)
	}
	if err := m.Delete(ctx, "does-not-exist"); err != nil {
		t.Fatalf("deleting an absent session should be a no-op: %v", err)
	}
}

func TestOTPSessionInMemoryBackend(t *testing.T) {
	ctx := context.Background()
	m := NewOTPSessionManager(NewInMemoryKVStore(), 50*time.Millisecond, 0, bcrypt.MinCost)
	if m.MaxAttempts() != 5 {
		t.Fatalf("expected default max attempts 5, got %d", m.MaxAttempts())
	}
	id, err := m.Create(ctx, otpTestPhone, "123456")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok, _ := m.Get(ctx, id); !ok {
		t.Fatal("expected live session")
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, id); ok {
		t.Fatal("expected session to expire")
	}
}

func TestOTPSessionStoreOutage(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	m := NewOTPSessionManager(NewRedisKVStore(client, "otptest", 200*time.Millisecond), time.Minute, 5, bcrypt.MinCost)
	server.Close()

	_, err := m.Create(ctx, otpTestPhone, "123456")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, _, err := m.Get(ctx, "abc"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on get, got %v", err)
	}
}
