package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

func (s *boardStore) Lookup(ctx context.Context, userID, boardID string) (core.AccessLevel, error) {
	var level string
	err := s.db.QueryRowContext(ctx,
		"SELECT level FROM board_access WHERE user_id = ? AND board_id = ?", userID, boardID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AccessNone, nil
	}
	if err != nil {
		logrus.WithError(err).WithField("board_id", boardID).Error("Failed to look up access")
		return core.AccessNone, err
	}
	return core.AccessLevel(level), nil
}

func (s *boardStore) Grant(ctx context.Context, entry core.AccessEntry) error {
	if _, ok := core.ParseAccessLevel(string(entry.Level)); !ok {
		return fmt.Errorf("invalid access level %q", entry.Level)
	}
	log := logrus.WithFields(logrus.Fields{
		"board_id": entry.BoardID,
		"user_id":  entry.UserID,
		"level":    entry.Level,
	})

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM boards WHERE id = ?", entry.BoardID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("board %s: %w", entry.BoardID, core.ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO board_access (user_id, board_id, level) VALUES (?, ?, ?)
		ON CONFLICT(user_id, board_id) DO UPDATE SET level = excluded.level`,
		entry.UserID, entry.BoardID, string(entry.Level))
	if err != nil {
		log.WithError(err).Error("Failed to grant access")
		return err
	}

	log.Info("Access granted")
	return nil
}

func (s *boardStore) Revoke(ctx context.Context, userID, boardID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM board_access WHERE user_id = ? AND board_id = ?", userID, boardID)
	if err != nil {
		return err
	}
	return requireRow(result, "access entry", boardID+"/"+userID)
}

func (s *boardStore) ListAccess(ctx context.Context, boardID string) ([]core.AccessEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, level FROM board_access WHERE board_id = ? ORDER BY user_id", boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]core.AccessEntry, 0)
	for rows.Next() {
		entry := core.AccessEntry{BoardID: boardID}
		var level string
		if err := rows.Scan(&entry.UserID, &level); err != nil {
			return nil, err
		}
		entry.Level = core.AccessLevel(level)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		// every board keeps its owner entry
		return nil, fmt.Errorf("board %s: %w", boardID, core.ErrNotFound)
	}
	return entries, nil
}
