package boards

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"tactics-board/core"
)

func TestHandleGrantAccess(t *testing.T) {
	store := newMockStore()
	id := createBoard(t, store, "coach")

	tests := []struct {
		name       string
		user       string
		target     string
		body       string
		wantStatus int
	}{
		{"owner grants view", "coach", "player", `{"level":"view"}`, http.StatusOK},
		{"owner upgrades to edit", "coach", "player", `{"level":"edit"}`, http.StatusOK},
		{"invalid level", "coach", "player", `{"level":"none"}`, http.StatusBadRequest},
		{"invalid body", "coach", "player", `nope`, http.StatusBadRequest},
		{"owner entry is fixed", "coach", "coach", `{"level":"view"}`, http.StatusBadRequest},
		{"editor is not owner", "player", "friend", `{"level":"view"}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(HandleGrantAccess(store), http.MethodPut, "/api/boards/"+id+"/access/"+tt.target,
				tt.body, tt.user, "id", id, "userId", tt.target)
			if rec.Code != tt.wantStatus {
				t.Errorf("Status code mismatch: got %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	level, _ := store.Lookup(context.Background(), "player", id)
	if level != core.AccessEdit {
		t.Errorf("player level = %q, want edit", level)
	}
	if level, _ := store.Lookup(context.Background(), "friend", id); level != core.AccessNone {
		t.Errorf("friend level = %q, want none", level)
	}
}

func TestHandleListAccess(t *testing.T) {
	store := newMockStore()
	id := createBoard(t, store, "coach")
	_ = store.Grant(context.Background(), core.AccessEntry{UserID: "player", BoardID: id, Level: core.AccessView})

	rec := call(HandleListAccess(store), http.MethodGet, "/api/boards/"+id+"/access", "", "coach", "id", id)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d", rec.Code)
	}
	var entries []core.AccessEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %+v", entries)
	}

	rec = call(HandleListAccess(store), http.MethodGet, "/api/boards/"+id+"/access", "", "player", "id", id)
	if rec.Code != http.StatusForbidden {
		t.Errorf("viewer list status = %d, want 403", rec.Code)
	}
}

func TestHandleRevokeAccess(t *testing.T) {
	store := newMockStore()
	id := createBoard(t, store, "coach")
	_ = store.Grant(context.Background(), core.AccessEntry{UserID: "player", BoardID: id, Level: core.AccessView})

	revoke := func(user, target string) int {
		return call(HandleRevokeAccess(store), http.MethodDelete, "/api/boards/"+id+"/access/"+target,
			"", user, "id", id, "userId", target).Code
	}

	if code := revoke("player", "player"); code != http.StatusForbidden {
		t.Errorf("non-owner revoke status = %d, want 403", code)
	}
	if code := revoke("coach", "coach"); code != http.StatusBadRequest {
		t.Errorf("owner self revoke status = %d, want 400", code)
	}
	if code := revoke("coach", "player"); code != http.StatusNoContent {
		t.Errorf("revoke status = %d, want 204", code)
	}
	if code := revoke("coach", "player"); code != http.StatusNotFound {
		t.Errorf("second revoke status = %d, want 404", code)
	}

	rec := call(HandleGet(store), http.MethodGet, "/api/boards/"+id, "", "player", "id", id)
	if rec.Code != http.StatusForbidden {
		t.Errorf("revoked user get status = %d, want 403", rec.Code)
	}
}
