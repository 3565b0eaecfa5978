package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS boards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		design_width DOUBLE PRECISION NOT NULL,
		design_height DOUBLE PRECISION NOT NULL,
		background_url TEXT,
		document BYTEA,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS board_access (
		user_id TEXT NOT NULL,
		board_id TEXT NOT NULL REFERENCES boards (id) ON DELETE CASCADE,
		level TEXT NOT NULL,
		PRIMARY KEY (user_id, board_id)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		board_id TEXT NOT NULL REFERENCES boards (id) ON DELETE CASCADE,
		name TEXT,
		created_by TEXT,
		created_at BIGINT NOT NULL,
		data BYTEA NOT NULL
	)`,
}

type boardStore struct {
	db *sql.DB
}

// New wraps an open database. The schema must already exist; see Migrate.
func New(db *sql.DB) *boardStore {
	return &boardStore{db: db}
}

// Open connects to dsn, pings it and creates the tables.
func Open(ctx context.Context, dsn string) (*boardStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := New(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *boardStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, board.Name, board.OwnerID, board.DesignWidth, board.DesignHeight, board.BackgroundURL, board.Document, now, now)
	if err != nil {
		log.WithError(err).Error("Failed to create board")
		return "", err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO board_access (user_id, board_id, level) VALUES ($1, $2, $3)",
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

	var (
		b                    core.Board
		background           sql.NullString
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, design_width, design_height, background_url, document, created_at, updated_at
		FROM boards WHERE id = $1`, id).
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
		WHERE a.user_id = $1
		ORDER BY b.updated_at DESC, b.id`, userID)
	if err != nil {
		log.WithError(err).Error("Failed to list boards")
		return nil, err
	}
	defer rows.Close()

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
		"UPDATE boards SET document = $1, background_url = $2, updated_at = $3 WHERE id = $4",
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

// Delete removes the board; access entries and snapshots cascade.
func (s *boardStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM boards WHERE id = $1", id)
	if err != nil {
		logrus.WithError(err).WithField("board_id", id).Error("Failed to delete board")
		return err
	}
	if err := requireRow(result, "board", id); err != nil {
		return err
	}

	logrus.WithField("board_id", id).Info("Board deleted successfully")
	return nil
}

func (s *boardStore) Lookup(ctx context.Context, userID, boardID string) (core.AccessLevel, error) {
	var level string
	err := s.db.QueryRowContext(ctx,
		"SELECT level FROM board_access WHERE user_id = $1 AND board_id = $2", userID, boardID).Scan(&level)
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

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO board_access (user_id, board_id, level)
		SELECT $1, id, $3 FROM boards WHERE id = $2
		ON CONFLICT (user_id, board_id) DO UPDATE SET level = EXCLUDED.level`,
		entry.UserID, entry.BoardID, string(entry.Level))
	if err != nil {
		logrus.WithError(err).WithField("board_id", entry.BoardID).Error("Failed to grant access")
		return err
	}
	if err := requireRow(result, "board", entry.BoardID); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"board_id": entry.BoardID,
		"user_id":  entry.UserID,
		"level":    entry.Level,
	}).Info("Access granted")
	return nil
}

func (s *boardStore) Revoke(ctx context.Context, userID, boardID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM board_access WHERE user_id = $1 AND board_id = $2", userID, boardID)
	if err != nil {
		return err
	}
	return requireRow(result, "access entry", boardID+"/"+userID)
}

func (s *boardStore) ListAccess(ctx context.Context, boardID string) ([]core.AccessEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, level FROM board_access WHERE board_id = $1 ORDER BY user_id", boardID)
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
		return nil, fmt.Errorf("board %s: %w", boardID, core.ErrNotFound)
	}
	return entries, nil
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
