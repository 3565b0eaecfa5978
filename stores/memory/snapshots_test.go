package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tactics-board/core"
)

func TestCreateSnapshot_Success(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boardID, _ := store.Create(ctx, newBoard("coach"))

	data := []byte(`{"designWidth":1200,"designHeight":800,"objects":[]}`)
	id, err := store.CreateSnapshot(ctx, boardID, "Before halftime", "coach", data)
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}

	snapshot, err := store.GetSnapshot(ctx, id)
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if snapshot.BoardID != boardID || snapshot.Name != "Before halftime" || snapshot.CreatedBy != "coach" {
		t.Errorf("GetSnapshot() = %+v", snapshot)
	}
	if string(snapshot.Data) != string(data) {
		t.Errorf("Data = %q, want %q", snapshot.Data, data)
	}
	if snapshot.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}
}

func TestCreateSnapshot_UnknownBoard(t *testing.T) {
	_, err := NewStore().CreateSnapshot(context.Background(), "missing", "n", "u", nil)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("CreateSnapshot() error = %v, want ErrNotFound", err)
	}
}

func TestCreateSnapshot_MaxSnapshotsLimit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boardID, _ := store.Create(ctx, newBoard("coach"))

	var first string
	for i := 0; i < core.MaxSnapshotsPerBoard+2; i++ {
		id, err := store.CreateSnapshot(ctx, boardID, fmt.Sprintf("snap-%d", i), "coach", []byte("{}"))
		if err != nil {
			t.Fatalf("CreateSnapshot() %d failed: %v", i, err)
		}
		if i == 0 {
			first = id
		}
	}

	snapshots, err := store.ListSnapshots(ctx, boardID)
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(snapshots) != core.MaxSnapshotsPerBoard {
		t.Errorf("ListSnapshots() returned %d, want %d", len(snapshots), core.MaxSnapshotsPerBoard)
	}
	if snapshots[0].Name != fmt.Sprintf("snap-%d", core.MaxSnapshotsPerBoard+1) {
		t.Errorf("newest snapshot = %q, want it listed first", snapshots[0].Name)
	}
	if _, err := store.GetSnapshot(ctx, first); !errors.Is(err, core.ErrNotFound) {
		t.Error("oldest snapshot was not evicted")
	}
	for _, s := range snapshots {
		if s.Data != nil {
			t.Errorf("ListSnapshots() snapshot %s carries data", s.ID)
		}
	}
}

func TestListSnapshots_EmptyBoard(t *testing.T) {
	snapshots, err := NewStore().ListSnapshots(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("ListSnapshots() = %v, want empty", snapshots)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boardID, _ := store.Create(ctx, newBoard("coach"))
	a, _ := store.CreateSnapshot(ctx, boardID, "a", "coach", []byte("{}"))
	b, _ := store.CreateSnapshot(ctx, boardID, "b", "coach", []byte("{}"))

	if err := store.DeleteSnapshot(ctx, a); err != nil {
		t.Fatalf("DeleteSnapshot() failed: %v", err)
	}
	if _, err := store.GetSnapshot(ctx, b); err != nil {
		t.Errorf("GetSnapshot() of remaining snapshot failed: %v", err)
	}
	if err := store.DeleteSnapshot(ctx, a); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteSnapshot() twice error = %v, want ErrNotFound", err)
	}
}
