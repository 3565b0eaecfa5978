package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tactics-board/core"
	"tactics-board/stores/memory"
)

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// newCached returns a cache over a memory store, backed by an in-process redis.
func newCached(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis, Backend) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	backend := memory.NewStore()
	return New(backend, rdb, ttl), mr, backend
}

func createBoard(t *testing.T, store core.BoardStore) string {
	t.Helper()
	id, err := store.Create(context.Background(), &core.Board{Name: "Kickoff", OwnerID: "coach", DesignWidth: 1200, DesignHeight: 800})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return id
}

func TestGet_ServedFromCacheUntilSaved(t *testing.T) {
	store, mr, backend := newCached(t, time.Minute)
	ctx := context.Background()
	id := createBoard(t, store)

	if _, err := store.Get(ctx, id); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !mr.Exists(boardKey(id)) {
		t.Fatal("board was not cached after a read")
	}
	if ttl := mr.TTL(boardKey(id)); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	// a write that bypasses the cache stays invisible until the key goes
	if err := backend.SaveDocument(ctx, id, []byte(`{"v":1}`), ""); err != nil {
		t.Fatalf("backend SaveDocument() failed: %v", err)
	}
	board, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(board.Document) == `{"v":1}` {
		t.Error("Get() bypassed the cached board")
	}

	if err := store.SaveDocument(ctx, id, []byte(`{"v":2}`), "https://cdn.example/pitch.png"); err != nil {
		t.Fatalf("SaveDocument() failed: %v", err)
	}
	if mr.Exists(boardKey(id)) {
		t.Error("SaveDocument() left the cached board behind")
	}
	board, err = store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(board.Document) != `{"v":2}` || board.BackgroundURL != "https://cdn.example/pitch.png" {
		t.Errorf("Get() = %s / %q, want the saved document", board.Document, board.BackgroundURL)
	}
}

func TestLookup_GrantAndRevokeInvalidate(t *testing.T) {
	store, mr, backend := newCached(t, time.Minute)
	ctx := context.Background()
	id := createBoard(t, store)

	if err := store.Grant(ctx, core.AccessEntry{UserID: "player", BoardID: id, Level: core.AccessEdit}); err != nil {
		t.Fatalf("Grant() failed: %v", err)
	}
	if level, err := store.Lookup(ctx, "player", id); err != nil || level != core.AccessEdit {
		t.Fatalf("Lookup() = %q, %v; want edit", level, err)
	}
	if got, _ := mr.Get(accessKey("player", id)); got != string(core.AccessEdit) {
		t.Fatalf("cached level = %q, want edit", got)
	}

	// served from redis while the backend changes underneath
	if err := backend.Grant(ctx, core.AccessEntry{UserID: "player", BoardID: id, Level: core.AccessView}); err != nil {
		t.Fatalf("backend Grant() failed: %v", err)
	}
	if level, _ := store.Lookup(ctx, "player", id); level != core.AccessEdit {
		t.Errorf("Lookup() = %q, want cached edit", level)
	}

	if err := store.Grant(ctx, core.AccessEntry{UserID: "player", BoardID: id, Level: core.AccessView}); err != nil {
		t.Fatalf("Grant() failed: %v", err)
	}
	if level, _ := store.Lookup(ctx, "player", id); level != core.AccessView {
		t.Errorf("Lookup() after Grant() = %q, want view", level)
	}

	if err := store.Revoke(ctx, "player", id); err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if level, _ := store.Lookup(ctx, "player", id); level != core.AccessNone {
		t.Errorf("Lookup() after Revoke() = %q, want none", level)
	}
}

func TestDelete_DropsBoardAndAccessKeys(t *testing.T) {
	store, mr, _ := newCached(t, time.Minute)
	ctx := context.Background()
	id := createBoard(t, store)
	other := createBoard(t, store)
	_ = store.Grant(ctx, core.AccessEntry{UserID: "player", BoardID: id, Level: core.AccessView})

	store.Get(ctx, id)
	store.Get(ctx, other)
	store.Lookup(ctx, "coach", id)
	store.Lookup(ctx, "player", id)
	store.Lookup(ctx, "coach", other)

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	for _, key := range []string{boardKey(id), accessKey("coach", id), accessKey("player", id)} {
		if mr.Exists(key) {
			t.Errorf("key %s survived Delete()", key)
		}
	}
	for _, key := range []string{boardKey(other), accessKey("coach", other)} {
		if !mr.Exists(key) {
			t.Errorf("key %s of another board was dropped", key)
		}
	}
	if level, _ := store.Lookup(ctx, "player", id); level != core.AccessNone {
		t.Errorf("Lookup() after Delete() = %q, want none", level)
	}
}

func TestGet_DiscardsUndecodableEntry(t *testing.T) {
	store, mr, _ := newCached(t, time.Minute)
	id := createBoard(t, store)
	mr.Set(boardKey(id), "not json")

	board, err := store.Get(context.Background(), id)
	if err != nil || board.Name != "Kickoff" {
		t.Errorf("Get() = %+v, %v; want the stored board", board, err)
	}
}

func TestStore_FallsThroughWhenRedisIsDown(t *testing.T) {
	backend := memory.NewStore()
	store := New(backend, unreachable(t), time.Minute)
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Board{Name: "Kickoff", OwnerID: "coach", DesignWidth: 1200, DesignHeight: 800})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	board, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if board.Name != "Kickoff" {
		t.Errorf("Name = %q, want Kickoff", board.Name)
	}

	level, err := store.Lookup(ctx, "coach", id)
	if err != nil || level != core.AccessEdit {
		t.Errorf("Lookup() = %q, %v; want edit", level, err)
	}

	if err := store.Grant(ctx, core.AccessEntry{UserID: "player", BoardID: id, Level: core.AccessView}); err != nil {
		t.Fatalf("Grant() failed: %v", err)
	}
	if level, _ := store.Lookup(ctx, "player", id); level != core.AccessView {
		t.Errorf("Lookup(player) = %q, want view", level)
	}

	if err := store.SaveDocument(ctx, id, []byte(`{}`), ""); err != nil {
		t.Fatalf("SaveDocument() failed: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Unwrap(t *testing.T) {
	backend := memory.NewStore()
	store := New(backend, unreachable(t), time.Minute)

	if _, ok := store.Unwrap().(core.SnapshotStore); !ok {
		t.Error("Unwrap() lost the snapshot capability of the backend")
	}
}

func TestKeys(t *testing.T) {
	if got := boardKey("b1"); got != "board:b1" {
		t.Errorf("boardKey() = %q", got)
	}
	if got := accessKey("u1", "b1"); got != "access:b1:u1" {
		t.Errorf("accessKey() = %q", got)
	}
}
