package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is wrapped by every store when a board, entry or snapshot is missing.
var ErrNotFound = errors.New("not found")

// AccessLevel is the permission a user holds on a board.
type AccessLevel string

const (
	AccessNone AccessLevel = "none"
	AccessView AccessLevel = "view"
	AccessEdit AccessLevel = "edit"
)

// ParseAccessLevel accepts only the levels that can be stored in an entry.
func ParseAccessLevel(s string) (AccessLevel, bool) {
	switch AccessLevel(s) {
	case AccessView, AccessEdit:
		return AccessLevel(s), true
	}
	return AccessNone, false
}

// CanView reports whether the board may be rendered at all.
func (l AccessLevel) CanView() bool { return l == AccessView || l == AccessEdit }

// CanEdit reports whether the board may be mutated.
func (l AccessLevel) CanEdit() bool { return l == AccessEdit }

type (
	// Board is a persisted tactics diagram. DesignWidth and DesignHeight are fixed
	// at creation; every stored coordinate is expressed in that space.
	Board struct {
		ID            string    `json:"id"`
		Name          string    `json:"name"`
		OwnerID       string    `json:"ownerId"`
		DesignWidth   float64   `json:"designWidth"`
		DesignHeight  float64   `json:"designHeight"`
		BackgroundURL string    `json:"backgroundUrl,omitempty"`
		Document      []byte    `json:"-"` // serialized BoardDocument, not included in list views
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	// AccessEntry grants one user a level on one board. At most one entry exists per pair.
	AccessEntry struct {
		UserID  string      `json:"userId"`
		BoardID string      `json:"boardId"`
		Level   AccessLevel `json:"level"`
	}

	// Snapshot is a named copy of a board document.
	Snapshot struct {
		ID        string `json:"id"`
		BoardID   string `json:"boardId"`
		Name      string `json:"name"`
		CreatedBy string `json:"createdBy"`
		CreatedAt int64  `json:"createdAt"`
		Data      []byte `json:"data,omitempty"`
	}

	// AccessGate maps (user, board) to a permission level. A missing entry is AccessNone.
	AccessGate interface {
		Lookup(ctx context.Context, userID, boardID string) (AccessLevel, error)
	}

	// AccessStore manages the access list of boards.
	AccessStore interface {
		AccessGate
		// Grant creates or replaces the entry for (UserID, BoardID).
		Grant(ctx context.Context, entry AccessEntry) error
		Revoke(ctx context.Context, userID, boardID string) error
		ListAccess(ctx context.Context, boardID string) ([]AccessEntry, error)
	}

	// BoardStore persists boards and their documents.
	BoardStore interface {
		// Create stores a new board and returns its generated ID.
		Create(ctx context.Context, board *Board) (string, error)
		Get(ctx context.Context, id string) (*Board, error)
		// List returns metadata for every board the user holds an entry on.
		// Returned boards carry no Document.
		List(ctx context.Context, userID string) ([]*Board, error)
		// SaveDocument replaces the document and keeps the board's background
		// metadata in step with it.
		SaveDocument(ctx context.Context, id string, document []byte, backgroundURL string) error
		// Delete removes the board together with its access entries.
		Delete(ctx context.Context, id string) error
	}

	// SnapshotStore keeps a bounded history of named board documents.
	SnapshotStore interface {
		CreateSnapshot(ctx context.Context, boardID, name, createdBy string, data []byte) (string, error)
		ListSnapshots(ctx context.Context, boardID string) ([]Snapshot, error)
		GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
		DeleteSnapshot(ctx context.Context, id string) error
	}
)

// MaxSnapshotsPerBoard bounds the snapshot history; the oldest is evicted first.
const MaxSnapshotsPerBoard = 10
