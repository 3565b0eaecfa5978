package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

func (s *boardStore) Lookup(ctx context.Context, userID, boardID string) (core.AccessLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if level, ok := s.access[boardID][userID]; ok {
		return level, nil
	}
	return core.AccessNone, nil
}

func (s *boardStore) Grant(ctx context.Context, entry core.AccessEntry) error {
	if _, ok := core.ParseAccessLevel(string(entry.Level)); !ok {
		return fmt.Errorf("invalid access level %q", entry.Level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[entry.BoardID]; !ok {
		return fmt.Errorf("board %s: %w", entry.BoardID, core.ErrNotFound)
	}
	entries, ok := s.access[entry.BoardID]
	if !ok {
		entries = make(map[string]core.AccessLevel)
		s.access[entry.BoardID] = entries
	}
	entries[entry.UserID] = entry.Level

	logrus.WithFields(logrus.Fields{
		"board_id": entry.BoardID,
		"user_id":  entry.UserID,
		"level":    entry.Level,
	}).Info("Access granted")
	return nil
}

func (s *boardStore) Revoke(ctx context.Context, userID, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.access[boardID][userID]; !ok {
		return fmt.Errorf("access entry %s/%s: %w", boardID, userID, core.ErrNotFound)
	}
	delete(s.access[boardID], userID)
	return nil
}

func (s *boardStore) ListAccess(ctx context.Context, boardID string) ([]core.AccessEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.boards[boardID]; !ok {
		return nil, fmt.Errorf("board %s: %w", boardID, core.ErrNotFound)
	}
	entries := make([]core.AccessEntry, 0, len(s.access[boardID]))
	for userID, level := range s.access[boardID] {
		entries = append(entries, core.AccessEntry{UserID: userID, BoardID: boardID, Level: level})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries, nil
}
