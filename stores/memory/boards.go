package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

// boardStore keeps boards, access entries and snapshots in process memory.
// Each instance has its own maps.
type boardStore struct {
	mu        sync.RWMutex
	boards    map[string]*core.Board
	access    map[string]map[string]core.AccessLevel // board id -> user id -> level
	snapshots map[string][]core.Snapshot             // board id -> oldest first
}

func NewStore() *boardStore {
	return &boardStore{
		boards:    make(map[string]*core.Board),
		access:    make(map[string]map[string]core.AccessLevel),
		snapshots: make(map[string][]core.Snapshot),
	}
}

func copyBoard(b *core.Board, withDocument bool) *core.Board {
	out := *b
	out.Document = nil
	if withDocument && b.Document != nil {
		out.Document = append([]byte(nil), b.Document...)
	}
	return &out
}

func (s *boardStore) Create(ctx context.Context, board *core.Board) (string, error) {
	if board.OwnerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	id := ulid.Make().String()
	now := time.Now().UTC()

	stored := copyBoard(board, true)
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.mu.Lock()
	s.boards[id] = stored
	s.access[id] = map[string]core.AccessLevel{board.OwnerID: core.AccessEdit}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"board_id": id,
		"owner_id": board.OwnerID,
	}).Info("Board created successfully")
	return id, nil
}

func (s *boardStore) Get(ctx context.Context, id string) (*core.Board, error) {
	log := logrus.WithField("board_id", id)

	s.mu.RLock()
	b, ok := s.boards[id]
	var out *core.Board
	if ok {
		out = copyBoard(b, true)
	}
	s.mu.RUnlock()

	if !ok {
		log.Warn("Board with specified ID not found")
		return nil, fmt.Errorf("board %s: %w", id, core.ErrNotFound)
	}
	log.Debug("Board retrieved successfully")
	return out, nil
}

func (s *boardStore) List(ctx context.Context, userID string) ([]*core.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	boards := make([]*core.Board, 0)
	for id, entries := range s.access {
		if _, ok := entries[userID]; !ok {
			continue
		}
		if b, ok := s.boards[id]; ok {
			boards = append(boards, copyBoard(b, false))
		}
	}
	sort.Slice(boards, func(i, j int) bool {
		if boards[i].UpdatedAt.Equal(boards[j].UpdatedAt) {
			return boards[i].ID < boards[j].ID
		}
		return boards[i].UpdatedAt.After(boards[j].UpdatedAt)
	})

	logrus.WithField("user_id", userID).Infof("Listed %d boards", len(boards))
	return boards, nil
}

func (s *boardStore) SaveDocument(ctx context.Context, id string, document []byte, backgroundURL string) error {
	log := logrus.WithFields(logrus.Fields{
		"board_id":    id,
		"data_length": len(document),
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[id]
	if !ok {
		log.Warn("Board with specified ID not found")
		return fmt.Errorf("board %s: %w", id, core.ErrNotFound)
	}
	b.Document = append([]byte(nil), document...)
	b.BackgroundURL = backgroundURL
	b.UpdatedAt = time.Now().UTC()
	log.Info("Board document saved")
	return nil
}

func (s *boardStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[id]; !ok {
		return fmt.Errorf("board %s: %w", id, core.ErrNotFound)
	}
	delete(s.boards, id)
	delete(s.access, id)
	delete(s.snapshots, id)

	logrus.WithField("board_id", id).Info("Board deleted successfully")
	return nil
}
