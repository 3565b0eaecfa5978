package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"tactics-board/core"
)

func newBoard(owner string) *core.Board {
	return &core.Board{
		Name:         "Kickoff",
		OwnerID:      owner,
		DesignWidth:  1200,
		DesignHeight: 800,
		Document:     []byte(`{"designWidth":1200,"designHeight":800,"objects":[]}`),
	}
}

func TestCreate_Success(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, newBoard("coach"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// ULIDs are 26 characters
	if len(id) != 26 {
		t.Errorf("Create() returned invalid ID length: got %d, want 26", len(id))
	}

	level, err := store.Lookup(ctx, "coach", id)
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if level != core.AccessEdit {
		t.Errorf("creator level = %q, want edit", level)
	}
}

func TestCreate_RequiresOwner(t *testing.T) {
	if _, err := NewStore().Create(context.Background(), newBoard("")); err == nil {
		t.Error("Create() without owner should fail")
	}
}

func TestGet_Success(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	board := newBoard("coach")
	id, err := store.Create(ctx, board)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.ID != id || got.Name != "Kickoff" || got.DesignWidth != 1200 || got.DesignHeight != 800 {
		t.Errorf("Get() = %+v", got)
	}
	if string(got.Document) != string(board.Document) {
		t.Errorf("Document = %q, want %q", got.Document, board.Document)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := NewStore().Get(context.Background(), "nonexistent-id")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	id, _ := store.Create(ctx, newBoard("coach"))

	got, _ := store.Get(ctx, id)
	got.Document[0] = 'X'
	got.Name = "changed"

	again, _ := store.Get(ctx, id)
	if again.Name != "Kickoff" || again.Document[0] != '{' {
		t.Error("mutating a returned board changed the store")
	}
}

func TestSaveDocument(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	id, _ := store.Create(ctx, newBoard("coach"))
	before, _ := store.Get(ctx, id)

	large := `{"designWidth":1200,"designHeight":800,"objects":[` + strings.Repeat(" ", 1024*1024) + `]}`
	if err := store.SaveDocument(ctx, id, []byte(large), "https://cdn.example/pitch.png"); err != nil {
		t.Fatalf("SaveDocument() failed: %v", err)
	}

	after, _ := store.Get(ctx, id)
	if len(after.Document) != len(large) {
		t.Errorf("Document size = %d, want %d", len(after.Document), len(large))
	}
	if after.BackgroundURL != "https://cdn.example/pitch.png" {
		t.Errorf("BackgroundURL = %q, want the saved background", after.BackgroundURL)
	}
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Error("UpdatedAt went backwards")
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Error("CreatedAt changed on save")
	}

	if err := store.SaveDocument(ctx, "missing", []byte("{}"), ""); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("SaveDocument(missing) error = %v, want ErrNotFound", err)
	}
}

func TestList_OnlyAccessibleBoards(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	mine, _ := store.Create(ctx, newBoard("coach"))
	shared, _ := store.Create(ctx, newBoard("other"))
	_, _ = store.Create(ctx, newBoard("other"))

	if err := store.Grant(ctx, core.AccessEntry{UserID: "coach", BoardID: shared, Level: core.AccessView}); err != nil {
		t.Fatalf("Grant() failed: %v", err)
	}

	boards, err := store.List(ctx, "coach")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(boards) != 2 {
		t.Fatalf("List() returned %d boards, want 2", len(boards))
	}
	ids := map[string]bool{}
	for _, b := range boards {
		ids[b.ID] = true
		if b.Document != nil {
			t.Errorf("List() board %s carries a document", b.ID)
		}
	}
	if !ids[mine] || !ids[shared] {
		t.Errorf("List() = %v, want %s and %s", ids, mine, shared)
	}

	empty, err := store.List(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Errorf("List(nobody) = %v, %v; want empty", empty, err)
	}
}

func TestDelete_RemovesAccessAndSnapshots(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	id, _ := store.Create(ctx, newBoard("coach"))
	sid, _ := store.CreateSnapshot(ctx, id, "v1", "coach", []byte("{}"))

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
	if level, _ := store.Lookup(ctx, "coach", id); level != core.AccessNone {
		t.Errorf("Lookup() after Delete() = %q, want none", level)
	}
	if _, err := store.GetSnapshot(ctx, sid); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetSnapshot() after Delete() error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestStoreIsolation(t *testing.T) {
	a, b := NewStore(), NewStore()
	ctx := context.Background()
	id, _ := a.Create(ctx, newBoard("coach"))

	if _, err := b.Get(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Error("stores share state")
	}
}

func TestConcurrentCreate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	numGoroutines := 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[string]bool)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.Create(ctx, newBoard("coach"))
			if err != nil {
				t.Errorf("Concurrent Create() failed: %v", err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != numGoroutines {
		t.Errorf("Expected %d unique IDs, got %d", numGoroutines, len(ids))
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	id, _ := store.Create(ctx, newBoard("coach"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := store.Get(ctx, id); err != nil {
					t.Errorf("Concurrent Get() failed: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := store.SaveDocument(ctx, id, []byte("{}"), ""); err != nil {
					t.Errorf("Concurrent SaveDocument() failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()
}
