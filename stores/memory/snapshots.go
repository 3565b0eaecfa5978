package memory

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

// CreateSnapshot stores a copy of data, evicting the oldest snapshot of the
// board once MaxSnapshotsPerBoard is reached.
func (s *boardStore) CreateSnapshot(ctx context.Context, boardID, name, createdBy string, data []byte) (string, error) {
	snapshot := core.Snapshot{
		ID:        ulid.Make().String(),
		BoardID:   boardID,
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: int64(ulid.Now()),
		Data:      append([]byte(nil), data...),
	}
	log := logrus.WithFields(logrus.Fields{
		"snapshot_id": snapshot.ID,
		"board_id":    boardID,
		"data_length": len(data),
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[boardID]; !ok {
		return "", fmt.Errorf("board %s: %w", boardID, core.ErrNotFound)
	}
	history := s.snapshots[boardID]
	if len(history) >= core.MaxSnapshotsPerBoard {
		log.WithField("evicted", history[0].ID).Debug("Evicting oldest snapshot")
		history = history[1:]
	}
	s.snapshots[boardID] = append(history, snapshot)

	log.Info("Snapshot created successfully")
	return snapshot.ID, nil
}

// ListSnapshots returns the board's snapshots newest first, without data.
func (s *boardStore) ListSnapshots(ctx context.Context, boardID string) ([]core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.snapshots[boardID]
	out := make([]core.Snapshot, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		snapshot := history[i]
		snapshot.Data = nil
		out = append(out, snapshot)
	}
	return out, nil
}

func (s *boardStore) GetSnapshot(ctx context.Context, id string) (*core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, history := range s.snapshots {
		for _, snapshot := range history {
			if snapshot.ID == id {
				snapshot.Data = append([]byte(nil), snapshot.Data...)
				return &snapshot, nil
			}
		}
	}
	logrus.WithField("snapshot_id", id).Warn("Snapshot with specified ID not found")
	return nil, fmt.Errorf("snapshot %s: %w", id, core.ErrNotFound)
}

func (s *boardStore) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for boardID, history := range s.snapshots {
		for i, snapshot := range history {
			if snapshot.ID == id {
				s.snapshots[boardID] = append(history[:i:i], history[i+1:]...)
				logrus.WithField("snapshot_id", id).Info("Snapshot deleted successfully")
				return nil
			}
		}
	}
	return fmt.Errorf("snapshot %s: %w", id, core.ErrNotFound)
}
