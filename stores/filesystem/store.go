package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

// boardFile is the on-disk form of one board: metadata, document and access list.
type boardFile struct {
	core.Board
	Document []byte                      `json:"document,omitempty"`
	Access   map[string]core.AccessLevel `json:"access"`
}

// fsStore keeps one JSON file per board under basePath.
type fsStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewStore creates a new filesystem-based store, creating basePath if needed.
func NewStore(basePath string) (*fsStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &fsStore{basePath: basePath}, nil
}

// boardPath maps an id to its file. Only ULIDs are accepted, so an id can never
// name a path outside basePath.
func (s *fsStore) boardPath(id string) (string, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", fmt.Errorf("board %q: %w", id, core.ErrNotFound)
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

func (s *fsStore) read(id string) (*boardFile, error) {
	path, err := s.boardPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("board %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	var f boardFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode board %s: %w", id, err)
	}
	if f.Access == nil {
		f.Access = make(map[string]core.AccessLevel)
	}
	return &f, nil
}

// write replaces the board file atomically.
func (s *fsStore) write(f *boardFile) error {
	path, err := s.boardPath(f.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.basePath, f.ID+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *fsStore) Create(ctx context.Context, board *core.Board) (string, error) {
	if board.OwnerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	now := time.Now().UTC()
	f := &boardFile{
		Board:    *board,
		Document: board.Document,
		Access:   map[string]core.AccessLevel{board.OwnerID: core.AccessEdit},
	}
	f.ID = ulid.Make().String()
	f.CreatedAt = now
	f.UpdatedAt = now

	log := logrus.WithFields(logrus.Fields{
		"board_id": f.ID,
		"owner_id": board.OwnerID,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(f); err != nil {
		log.WithError(err).Error("Failed to create board")
		return "", err
	}

	log.Info("Board created successfully")
	return f.ID, nil
}

func (s *fsStore) Get(ctx context.Context, id string) (*core.Board, error) {
	log := logrus.WithField("board_id", id)

	s.mu.RLock()
	f, err := s.read(id)
	s.mu.RUnlock()
	if err != nil {
		log.WithError(err).Warn("Failed to retrieve board")
		return nil, err
	}

	board := f.Board
	board.Document = f.Document
	log.Info("Board retrieved successfully")
	return &board, nil
}

func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Board, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "path": s.basePath})

	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := os.ReadDir(s.basePath)
	if err != nil {
		log.WithError(err).Error("Failed to read board directory")
		return nil, err
	}

	boards := make([]*core.Board, 0)
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		f, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			log.WithError(err).Warnf("Failed to read board file %s, skipping", name)
			continue
		}
		if _, ok := f.Access[userID]; !ok {
			continue
		}
		board := f.Board
		board.Document = nil
		boards = append(boards, &board)
	}
	sort.Slice(boards, func(i, j int) bool {
		if boards[i].UpdatedAt.Equal(boards[j].UpdatedAt) {
			return boards[i].ID < boards[j].ID
		}
		return boards[i].UpdatedAt.After(boards[j].UpdatedAt)
	})

	log.Infof("Listed %d boards", len(boards))
	return boards, nil
}

// update applies fn to the board file under the write lock.
func (s *fsStore) update(id string, fn func(*boardFile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read(id)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return s.write(f)
}

func (s *fsStore) SaveDocument(ctx context.Context, id string, document []byte, backgroundURL string) error {
	log := logrus.WithFields(logrus.Fields{
		"board_id":    id,
		"data_length": len(document),
	})

	err := s.update(id, func(f *boardFile) error {
		f.Document = document
		f.BackgroundURL = backgroundURL
		f.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to save board document")
		return err
	}

	log.Info("Board document saved")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, id string) error {
	path, err := s.boardPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("board %s: %w", id, core.ErrNotFound)
		}
		logrus.WithError(err).WithField("board_id", id).Error("Failed to delete board file")
		return err
	}

	logrus.WithField("board_id", id).Info("Board deleted successfully")
	return nil
}

func (s *fsStore) Lookup(ctx context.Context, userID, boardID string) (core.AccessLevel, error) {
	s.mu.RLock()
	f, err := s.read(boardID)
	s.mu.RUnlock()

	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.AccessNone, nil
		}
		return core.AccessNone, err
	}
	if level, ok := f.Access[userID]; ok {
		return level, nil
	}
	return core.AccessNone, nil
}

func (s *fsStore) Grant(ctx context.Context, entry core.AccessEntry) error {
	if _, ok := core.ParseAccessLevel(string(entry.Level)); !ok {
		return fmt.Errorf("invalid access level %q", entry.Level)
	}
	err := s.update(entry.BoardID, func(f *boardFile) error {
		f.Access[entry.UserID] = entry.Level
		return nil
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"board_id": entry.BoardID,
		"user_id":  entry.UserID,
		"level":    entry.Level,
	}).Info("Access granted")
	return nil
}

func (s *fsStore) Revoke(ctx context.Context, userID, boardID string) error {
	return s.update(boardID, func(f *boardFile) error {
		if _, ok := f.Access[userID]; !ok {
			return fmt.Errorf("access entry %s/%s: %w", boardID, userID, core.ErrNotFound)
		}
		delete(f.Access, userID)
		return nil
	})
}

func (s *fsStore) ListAccess(ctx context.Context, boardID string) ([]core.AccessEntry, error) {
	s.mu.RLock()
	f, err := s.read(boardID)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	entries := make([]core.AccessEntry, 0, len(f.Access))
	for userID, level := range f.Access {
		entries = append(entries, core.AccessEntry{UserID: userID, BoardID: boardID, Level: level})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries, nil
}
