package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

func (s *boardStore) CreateSnapshot(ctx context.Context, boardID, name, createdBy string, data []byte) (string, error) {
	id := ulid.Make().String()
	createdAt := int64(ulid.Now())
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

	// board row lock serializes snapshot creation per board
	var locked string
	err = tx.QueryRowContext(ctx, "SELECT id FROM boards WHERE id = $1 FOR UPDATE", boardID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("board %s: %w", boardID, core.ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id IN (
			SELECT id FROM snapshots WHERE board_id = $1
			ORDER BY created_at DESC, id DESC OFFSET $2)`,
		boardID, core.MaxSnapshotsPerBoard-1)
	if err != nil {
		log.WithError(err).Error("Failed to evict old snapshots")
		return "", err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, board_id, name, created_by, created_at, data) VALUES ($1, $2, $3, $4, $5, $6)",
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

func (s *boardStore) ListSnapshots(ctx context.Context, boardID string) ([]core.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, board_id, name, created_by, created_at FROM snapshots
		WHERE board_id = $1 ORDER BY created_at DESC, id DESC`, boardID)
	if err != nil {
		logrus.WithError(err).WithField("board_id", boardID).Error("Failed to list snapshots")
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]core.Snapshot, 0)
	for rows.Next() {
		var snapshot core.Snapshot
		var name, createdBy sql.NullString
		if err := rows.Scan(&snapshot.ID, &snapshot.BoardID, &name, &createdBy, &snapshot.CreatedAt); err != nil {
			return nil, err
		}
		snapshot.Name = name.String
		snapshot.CreatedBy = createdBy.String
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func (s *boardStore) GetSnapshot(ctx context.Context, id string) (*core.Snapshot, error) {
	var snapshot core.Snapshot
	var name, createdBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, board_id, name, created_by, created_at, data FROM snapshots WHERE id = $1", id).
		Scan(&snapshot.ID, &snapshot.BoardID, &name, &createdBy, &snapshot.CreatedAt, &snapshot.Data)
	if errors.Is(err, sql.ErrNoRows) {
		logrus.WithField("snapshot_id", id).Warn("Snapshot with specified ID not found")
		return nil, fmt.Errorf("snapshot %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	snapshot.Name = name.String
	snapshot.CreatedBy = createdBy.String
	return &snapshot, nil
}

func (s *boardStore) DeleteSnapshot(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = $1", id)
	if err != nil {
		return err
	}
	return requireRow(result, "snapshot", id)
}
