package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS boards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		design_width REAL NOT NULL,
		design_height REAL NOT NULL,
		background_url TEXT,
		document BLOB,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS board_access (
		user_id TEXT NOT NULL,
		board_id TEXT NOT NULL,
		level TEXT NOT NULL,
		PRIMARY KEY (user_id, board_id)
	);`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		board_id TEXT NOT NULL,
		name TEXT,
		created_by TEXT,
		created_at INTEGER NOT NULL,
		data BLOB NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS snapshots_board ON snapshots (board_id, created_at);`,
}

type boardStore struct {
	db *sql.DB
}

// NewStore opens the sqlite database at dataSourceName and creates the tables.
func NewStore(dataSourceName string) (*boardStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &boardStore{db}, nil
}

func (s *boardStore) Close() error {
	return s.db.Close()
}

func (s *boardStore) Create(ctx context.Context, board *core.Board) (string, error) {
	if board.OwnerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	id := ulid.Make().String()
	now := time.Now().UTC().UnixMilli()
	log := logrus.WithFields(logrus.Fields{
		"board_id": id,
		"owner_id": board.OwnerID,
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO boards (id, name, owner_id, design_width, design_height, background_url, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, board.Name, board.OwnerID, board.DesignWidth, board.DesignHeight, board.BackgroundURL, board.Document, now, now)
	if err != nil {
		log.WithError(err).Error("Failed to create board")
		return "", err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO board_access (user_id, board_id, level) VALUES (?, ?, ?)",
		board.OwnerID, id, string(core.AccessEdit))
	if err != nil {
		log.WithError(err).Error("Failed to grant owner access")
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	log.Info("Board created successfully")
	return id, nil
}

func (s *boardStore) Get(ctx context.Context, id string) (*core.Board, error) {
	log := logrus.WithField("board_id", id)
	log.Debug("Retrieving board by ID")

	var (
		b                    core.Board
		background           sql.NullString
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, design_width, design_height, background_url, document, created_at, updated_at
		FROM boards WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.OwnerID, &b.DesignWidth, &b.DesignHeight, &background, &b.Document, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Board with specified ID not found")
			return nil, fmt.Errorf("board %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve board")
		return nil, err
	}
	b.BackgroundURL = background.String
	b.CreatedAt = time.UnixMilli(createdAt).UTC()
	b.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	log.Info("Board retrieved successfully")
	return &b, nil
}

func (s *boardStore) List(ctx context.Context, userID string) ([]*core.Board, error) {
	log := logrus.WithField("user_id", userID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.name, b.owner_id, b.design_width, b.design_height, b.background_url, b.created_at, b.updated_at
		FROM boards b JOIN board_access a ON a.board_id = b.id
		WHERE a.user_id = ?
		ORDER BY b.updated_at DESC, b.id`, userID)
	if err != nil {
		log.WithError(err).Error("Failed to list boards")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close board rows")
		}
	}()

	boards := make([]*core.Board, 0)
	for rows.Next() {
		var (
			b                    core.Board
			background           sql.NullString
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.OwnerID, &b.DesignWidth, &b.DesignHeight, &background, &createdAt, &updatedAt); err != nil {
			log.WithError(err).Error("Failed to scan board")
			return nil, err
		}
		b.BackgroundURL = background.String
		b.CreatedAt = time.UnixMilli(createdAt).UTC()
		b.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		boards = append(boards, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Infof("Listed %d boards", len(boards))
	return boards, nil
}

func (s *boardStore) SaveDocument(ctx context.Context, id string, document []byte, backgroundURL string) error {
	log := logrus.WithFields(logrus.Fields{
		"board_id":    id,
		"data_length": len(document),
	})

	result, err := s.db.ExecContext(ctx,
		"UPDATE boards SET document = ?, background_url = ?, updated_at = ? WHERE id = ?",
		document, backgroundURL, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		log.WithError(err).Error("Failed to save board document")
		return err
	}
	if err := requireRow(result, "board", id); err != nil {
		log.Warn("Board with specified ID not found")
		return err
	}

	log.Info("Board document saved")
	return nil
}

func (s *boardStore) Delete(ctx context.Context, id string) error {
	log := logrus.WithField("board_id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM boards WHERE id = ?", id)
	if err != nil {
		log.WithError(err).Error("Failed to delete board")
		return err
	}
	if err := requireRow(result, "board", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM board_access WHERE board_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE board_id = ?", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info("Board deleted successfully")
	return nil
}

func requireRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}
