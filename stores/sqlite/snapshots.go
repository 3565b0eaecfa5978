package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

// CreateSnapshot creates a new snapshot for a board. Once the board holds
// MaxSnapshotsPerBoard snapshots the oldest is deleted.
func (s *boardStore) CreateSnapshot(ctx context.Context, boardID, name, createdBy string, data []byte) (string, error) {
	id := ulid.Make().String()
	createdAt := ulid.Now()

	log := logrus.WithFields(logrus.Fields{
		"snapshot_id": id,
		"board_id":    boardID,
		"data_length": len(data),
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM boards WHERE id = ?", boardID).Scan(&exists); err != nil {
		return "", err
	}
	if exists == 0 {
		return "", fmt.Errorf("board %s: %w", boardID, core.ErrNotFound)
	}

	var count int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE board_id = ?", boardID).Scan(&count)
	if err != nil {
		log.WithError(err).Error("Failed to count snapshots")
		return "", err
	}

	if count >= core.MaxSnapshotsPerBoard {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM snapshots WHERE id IN (
				SELECT id FROM snapshots WHERE board_id = ? ORDER BY created_at ASC, id ASC LIMIT ?)`,
			boardID, count-core.MaxSnapshotsPerBoard+1)
		if err != nil {
			log.WithError(err).Error("Failed to delete oldest snapshot")
			return "", err
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, board_id, name, created_by, created_at, data) VALUES (?, ?, ?, ?, ?, ?)",
		id, boardID, name, createdBy, createdAt, data)
	if err != nil {
		log.WithError(err).Error("Failed to create snapshot")
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	log.Info("Snapshot created successfully")
	return id, nil
}

// ListSnapshots lists the snapshots of a board, newest first and without data.
func (s *boardStore) ListSnapshots(ctx context.Context, boardID string) ([]core.Snapshot, error) {
	log := logrus.WithField("board_id", boardID)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, board_id, name, created_by, created_at FROM snapshots WHERE board_id = ? ORDER BY created_at DESC, id DESC",
		boardID)
	if err != nil {
		log.WithError(err).Error("Failed to list snapshots")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close snapshot rows")
		}
	}()

	snapshots := make([]core.Snapshot, 0)
	for rows.Next() {
		var snapshot core.Snapshot
		var name, createdBy sql.NullString
		if err := rows.Scan(&snapshot.ID, &snapshot.BoardID, &name, &createdBy, &snapshot.CreatedAt); err != nil {
			log.WithError(err).Error("Failed to scan snapshot")
			continue
		}
		snapshot.Name = name.String
		snapshot.CreatedBy = createdBy.String
		snapshots = append(snapshots, snapshot)
	}

	log.Debug("Snapshots listed successfully")
	return snapshots, rows.Err()
}

func (s *boardStore) GetSnapshot(ctx context.Context, id string) (*core.Snapshot, error) {
	log := logrus.WithField("snapshot_id", id)

	var snapshot core.Snapshot
	var name, createdBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, board_id, name, created_by, created_at, data FROM snapshots WHERE id = ?", id).
		Scan(&snapshot.ID, &snapshot.BoardID, &name, &createdBy, &snapshot.CreatedAt, &snapshot.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Snapshot with specified ID not found")
			return nil, fmt.Errorf("snapshot %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve snapshot")
		return nil, err
	}
	snapshot.Name = name.String
	snapshot.CreatedBy = createdBy.String

	return &snapshot, nil
}

func (s *boardStore) DeleteSnapshot(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		logrus.WithError(err).WithField("snapshot_id", id).Error("Failed to delete snapshot")
		return err
	}
	if err := requireRow(result, "snapshot", id); err != nil {
		return err
	}

	logrus.WithField("snapshot_id", id).Info("Snapshot deleted successfully")
	return nil
}
