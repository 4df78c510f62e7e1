package stash

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStash(t *testing.T) StashService {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(rdb, 5*time.Minute)
}

func testEntry() *Entry {
	return &Entry{
		UserID: "user-1",
		RuleID: "users.delete",
		Method: "POST",
		URL:    "/admin/users?action=delete&id=42",
		Params: url.Values{"action": {"delete"}, "id": {"42"}},
	}
}

func TestStash_RoundTrip(t *testing.T) {
	svc := newTestStash(t)
	ctx := context.Background()

	key, err := svc.Save(ctx, testEntry())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// 16 random bytes hex-encoded.
	if len(key) != stashKeyBytes*2 {
		t.Errorf("expected %d-char key, got %d", stashKeyBytes*2, len(key))
	}

	got, err := svc.Get(ctx, key, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected the stored entry")
	}
	if got.UserID != "user-1" || got.RuleID != "users.delete" || got.Method != "POST" {
		t.Errorf("entry fields mangled: %+v", got)
	}
	if got.URL != "/admin/users?action=delete&id=42" {
		t.Errorf("URL mangled: %s", got.URL)
	}
	if got.Params.Get("id") != "42" {
		t.Errorf("params mangled: %v", got.Params)
	}
}

func TestStash_WrongUserGetsNothing(t *testing.T) {
	svc := newTestStash(t)
	ctx := context.Background()

	key, _ := svc.Save(ctx, testEntry())

	// A guessed key belonging to another user is indistinguishable from a
	// missing key.
	got, err := svc.Get(ctx, key, "user-2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("foreign user must not retrieve the entry")
	}

	// The entry survives for its owner.
	got, _ = svc.Get(ctx, key, "user-1")
	if got == nil {
		t.Error("owner should still retrieve the entry")
	}
}

func TestStash_Delete(t *testing.T) {
	svc := newTestStash(t)
	ctx := context.Background()

	key, _ := svc.Save(ctx, testEntry())

	exists, _ := svc.Exists(ctx, key)
	if !exists {
		t.Fatal("entry should exist before delete")
	}

	if err := svc.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, _ := svc.Get(ctx, key, "user-1")
	if got != nil {
		t.Error("deleted entry should not be retrievable")
	}
	exists, _ = svc.Exists(ctx, key)
	if exists {
		t.Error("deleted entry should not exist")
	}
}

func TestStash_TakeConsumes(t *testing.T) {
	svc := newTestStash(t)
	ctx := context.Background()

	key, _ := svc.Save(ctx, testEntry())

	got, err := svc.Take(ctx, key, "user-1")
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if got == nil || got.RuleID != "users.delete" {
		t.Fatalf("expected the stored entry, got %+v", got)
	}

	// One-shot: the replay path cannot run twice.
	again, _ := svc.Take(ctx, key, "user-1")
	if again != nil {
		t.Error("Take should consume the entry")
	}
}

func TestStash_TakeWrongUserLeavesEntry(t *testing.T) {
	svc := newTestStash(t)
	ctx := context.Background()

	key, _ := svc.Save(ctx, testEntry())

	got, _ := svc.Take(ctx, key, "user-2")
	if got != nil {
		t.Fatal("foreign user must not take the entry")
	}

	// The failed take must not have consumed it.
	exists, _ := svc.Exists(ctx, key)
	if !exists {
		t.Error("entry should survive a foreign take attempt")
	}
}

func TestStash_MissingUserID(t *testing.T) {
	svc := newTestStash(t)

	_, err := svc.Save(context.Background(), &Entry{RuleID: "users.delete"})
	if err == nil {
		t.Error("saving without a user ID should fail")
	}
}

func TestStash_KeysAreUnique(t *testing.T) {
	svc := newTestStash(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := svc.Save(ctx, testEntry())
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate stash key: %s", key)
		}
		seen[key] = true
	}
}
