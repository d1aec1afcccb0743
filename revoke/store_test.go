package revoke

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "", ""), mr
}

func TestSaveAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := Record{UserID: "u-1", SessionID: "s-1", IssuedAt: time.Now().Unix()}
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, "u-1", "s-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != rec.UserID || got.SessionID != rec.SessionID || got.IssuedAt != rec.IssuedAt {
		t.Errorf("got %+v, want %+v", got, rec)
	}

	exists, err := store.Exists(ctx, "u-1", "s-1")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v, want true, nil", exists, err)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "u-1", "nope")
	if !errors.Is(err, redis.Nil) {
		t.Errorf("expected redis.Nil, got %v", err)
	}
}

func TestConsumeReportsExistence(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := Record{UserID: "u-1", SessionID: "s-1", IssuedAt: time.Now().Unix()}
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	existed, err := store.Consume(ctx, "u-1", "s-1")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !existed {
		t.Fatal("first consume should observe the record")
	}

	existed, err = store.Consume(ctx, "u-1", "s-1")
	if err != nil {
		t.Fatalf("second Consume: %v", err)
	}
	if existed {
		t.Fatal("second consume must not observe the record")
	}

	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("index still lists sessions after consume: %v", ids)
	}
}

func TestConsumeSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := Record{UserID: "u-1", SessionID: "s-race", IssuedAt: time.Now().Unix()}
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const goroutines = 16
	var wg sync.WaitGroup
	winners := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			existed, err := store.Consume(ctx, "u-1", "s-race")
			if err != nil {
				t.Errorf("Consume: %v", err)
				return
			}
			if existed {
				winners <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(winners)

	count := 0
	for range winners {
		count++
	}
	if count != 1 {
		t.Errorf("winners = %d, want exactly 1", count)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, sid := range []string{"s-1", "s-2", "s-3"} {
		rec := Record{UserID: "u-1", SessionID: sid, IssuedAt: time.Now().Unix()}
		if err := store.Save(ctx, rec, time.Hour); err != nil {
			t.Fatalf("Save %s: %v", sid, err)
		}
	}
	// Another user's sessions must be untouched.
	other := Record{UserID: "u-2", SessionID: "s-9", IssuedAt: time.Now().Unix()}
	if err := store.Save(ctx, other, time.Hour); err != nil {
		t.Fatalf("Save other: %v", err)
	}

	deleted, err := store.DeleteAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("sessions remain after bulk revoke: %v", ids)
	}

	exists, err := store.Exists(ctx, "u-2", "s-9")
	if err != nil || !exists {
		t.Errorf("other user's session lost: %v, %v", exists, err)
	}
}

func TestDeleteAllForUserEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	deleted, err := store.DeleteAllForUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func TestRecordExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	rec := Record{UserID: "u-1", SessionID: "s-ttl", IssuedAt: time.Now().Unix()}
	if err := store.Save(ctx, rec, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	exists, err := store.Exists(ctx, "u-1", "s-ttl")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("record survived TTL expiry")
	}
}

func TestStoreUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	if err := store.Save(context.Background(), Record{UserID: "u", SessionID: "s"}, time.Hour); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Save error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := store.Consume(context.Background(), "u", "s"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Consume error = %v, want ErrStoreUnavailable", err)
	}
}

func TestEncodeDecodeRecord(t *testing.T) {
	rec := Record{UserID: "user-with-longer-id", SessionID: "session-id", IssuedAt: 1735689600}

	data, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}

	got, err := decodeRecord(data)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if *got != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}

	if _, err := decodeRecord([]byte{99}); err == nil {
		t.Error("decodeRecord accepted unknown version")
	}
	if _, err := decodeRecord(nil); err == nil {
		t.Error("decodeRecord accepted empty input")
	}
}
