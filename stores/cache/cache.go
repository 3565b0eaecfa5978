// Package cache puts a redis read-through cache in front of a board store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

// Backend is the store being cached.
type Backend interface {
	core.BoardStore
	core.AccessStore
}

// cachedBoard carries the document, which core.Board hides from JSON.
type cachedBoard struct {
	core.Board
	Document []byte `json:"document,omitempty"`
}

type Store struct {
	Backend
	rdb *redis.Client
	ttl time.Duration
}

func New(backend Backend, rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{Backend: backend, rdb: rdb, ttl: ttl}
}

// Unwrap returns the cached store.
func (s *Store) Unwrap() core.BoardStore {
	return s.Backend
}

// Close closes the redis client and the cached store if it holds resources.
func (s *Store) Close() error {
	err := s.rdb.Close()
	if c, ok := s.Backend.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

func boardKey(id string) string {
	return "board:" + id
}

func accessKey(userID, boardID string) string {
	return "access:" + boardID + ":" + userID
}

func (s *Store) Get(ctx context.Context, id string) (*core.Board, error) {
	log := logrus.WithField("board_id", id)

	data, err := s.rdb.Get(ctx, boardKey(id)).Bytes()
	switch {
	case err == nil:
		var cached cachedBoard
		if err := json.Unmarshal(data, &cached); err == nil {
			board := cached.Board
			board.Document = cached.Document
			return &board, nil
		}
		log.Warn("Discarding undecodable cached board")
	case !errors.Is(err, redis.Nil):
		log.WithError(err).Warn("Board cache unavailable")
	}

	board, err := s.Backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(cachedBoard{Board: *board, Document: board.Document}); err == nil {
		if err := s.rdb.Set(ctx, boardKey(id), data, s.ttl).Err(); err != nil {
			log.WithError(err).Warn("Failed to cache board")
		}
	}
	return board, nil
}

func (s *Store) SaveDocument(ctx context.Context, id string, document []byte, backgroundURL string) error {
	if err := s.Backend.SaveDocument(ctx, id, document, backgroundURL); err != nil {
		return err
	}
	s.invalidate(ctx, boardKey(id))
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.Backend.Delete(ctx, id); err != nil {
		return err
	}
	keys := []string{boardKey(id)}
	iter := s.rdb.Scan(ctx, 0, "access:"+id+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logrus.WithError(err).WithField("board_id", id).Warn("Failed to scan cached access entries")
	}
	s.invalidate(ctx, keys...)
	return nil
}

func (s *Store) Lookup(ctx context.Context, userID, boardID string) (core.AccessLevel, error) {
	key := accessKey(userID, boardID)
	level, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		return core.AccessLevel(level), nil
	}
	if !errors.Is(err, redis.Nil) {
		logrus.WithError(err).WithField("board_id", boardID).Warn("Access cache unavailable")
	}

	resolved, err := s.Backend.Lookup(ctx, userID, boardID)
	if err != nil {
		return core.AccessNone, err
	}
	if err := s.rdb.Set(ctx, key, string(resolved), s.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("board_id", boardID).Warn("Failed to cache access level")
	}
	return resolved, nil
}

func (s *Store) Grant(ctx context.Context, entry core.AccessEntry) error {
	if err := s.Backend.Grant(ctx, entry); err != nil {
		return err
	}
	s.invalidate(ctx, accessKey(entry.UserID, entry.BoardID))
	return nil
}

func (s *Store) Revoke(ctx context.Context, userID, boardID string) error {
	if err := s.Backend.Revoke(ctx, userID, boardID); err != nil {
		return err
	}
	s.invalidate(ctx, accessKey(userID, boardID))
	return nil
}

func (s *Store) invalidate(ctx context.Context, keys ...string) {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		logrus.WithError(err).WithField("keys", keys).Warn("Failed to invalidate cache")
	}
}
