package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, ""), mr
}

func TestBudgetExhaustion(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{MaxAttempts: 5, Window: 15 * time.Minute}

	for i := 1; i <= 5; i++ {
		d, err := limiter.CheckAndIncrement(ctx, "login", "198.51.100.7", policy)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d rejected within budget", i)
		}
		if d.Count != i {
			t.Errorf("attempt %d count = %d", i, d.Count)
		}
	}

	d, err := limiter.CheckAndIncrement(ctx, "login", "198.51.100.7", policy)
	if err != nil {
		t.Fatalf("sixth attempt: %v", err)
	}
	if d.Allowed {
		t.Fatal("sixth attempt allowed past budget")
	}
	if d.Count != 5 {
		t.Errorf("blocked count = %d, want 5 (no increment past budget)", d.Count)
	}
	if d.ResetAfter <= 0 || d.ResetAfter > policy.Window {
		t.Errorf("ResetAfter = %v", d.ResetAfter)
	}
}

func TestBlockedAttemptsDoNotExtendWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{MaxAttempts: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		if _, err := limiter.CheckAndIncrement(ctx, "login", "id", policy); err != nil {
			t.Fatal(err)
		}
	}

	first, err := limiter.CheckAndIncrement(ctx, "login", "id", policy)
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(10 * time.Second)
	second, err := limiter.CheckAndIncrement(ctx, "login", "id", policy)
	if err != nil {
		t.Fatal(err)
	}

	if second.ResetAfter >= first.ResetAfter {
		t.Errorf("hammering extended the window: %v then %v", first.ResetAfter, second.ResetAfter)
	}
}

func TestWindowReset(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{MaxAttempts: 2, Window: time.Minute}

	for i := 0; i < 3; i++ {
		if _, err := limiter.CheckAndIncrement(ctx, "login", "id", policy); err != nil {
			t.Fatal(err)
		}
	}

	mr.FastForward(2 * time.Minute)

	d, err := limiter.CheckAndIncrement(ctx, "login", "id", policy)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Errorf("after window expiry: allowed=%v count=%d, want fresh window", d.Allowed, d.Count)
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{MaxAttempts: 1, Window: time.Minute}

	if _, err := limiter.CheckAndIncrement(ctx, "login", "alice", policy); err != nil {
		t.Fatal(err)
	}

	d, err := limiter.CheckAndIncrement(ctx, "login", "bob", policy)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("bob blocked by alice's counter")
	}

	d, err = limiter.CheckAndIncrement(ctx, "signup", "alice", policy)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("signup blocked by login counter")
	}
}

func TestConcurrentNeverExceedsBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{MaxAttempts: 5, Window: time.Minute}

	const goroutines = 32
	var allowed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.CheckAndIncrement(ctx, "login", "shared", policy)
			if err != nil {
				t.Errorf("CheckAndIncrement: %v", err)
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != int64(policy.MaxAttempts) {
		t.Errorf("allowed = %d, want exactly %d", got, policy.MaxAttempts)
	}

	d, err := limiter.Peek(ctx, "login", "shared", policy)
	if err != nil {
		t.Fatal(err)
	}
	if d.Count != policy.MaxAttempts {
		t.Errorf("final count = %d, want %d", d.Count, policy.MaxAttempts)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{MaxAttempts: 3, Window: time.Minute}

	d, err := limiter.Peek(ctx, "login", "id", policy)
	if err != nil {
		t.Fatalf("Peek on missing key: %v", err)
	}
	if !d.Allowed || d.Count != 0 || d.ResetAfter != policy.Window {
		t.Errorf("fresh peek = %+v", d)
	}

	if _, err := limiter.CheckAndIncrement(ctx, "login", "id", policy); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := limiter.Peek(ctx, "login", "id", policy); err != nil {
			t.Fatal(err)
		}
	}

	d, err = limiter.Peek(ctx, "login", "id", policy)
	if err != nil {
		t.Fatal(err)
	}
	if d.Count != 1 {
		t.Errorf("peek consumed slots: count = %d, want 1", d.Count)
	}
}

func TestReset(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	policy := Policy{MaxAttempts: 1, Window: time.Minute}

	if _, err := limiter.CheckAndIncrement(ctx, "login", "id", policy); err != nil {
		t.Fatal(err)
	}
	if err := limiter.Reset(ctx, "login", "id"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	d, err := limiter.CheckAndIncrement(ctx, "login", "id", policy)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Errorf("after reset: allowed=%v count=%d", d.Allowed, d.Count)
	}
}

func TestRedisUnavailable(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	policy := Policy{MaxAttempts: 1, Window: time.Minute}
	if _, err := limiter.CheckAndIncrement(context.Background(), "login", "id", policy); !errors.Is(err, ErrRedisUnavailable) {
		t.Errorf("CheckAndIncrement error = %v, want ErrRedisUnavailable", err)
	}
	if _, err := limiter.Peek(context.Background(), "login", "id", policy); !errors.Is(err, ErrRedisUnavailable) {
		t.Errorf("Peek error = %v, want ErrRedisUnavailable", err)
	}
}
