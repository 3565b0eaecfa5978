package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

const keyPrefix = "boards/"

// API is the subset of the S3 client the store uses.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type boardObject struct {
	core.Board
	Document []byte                      `json:"document,omitempty"`
	Access   map[string]core.AccessLevel `json:"access"`
}

// s3Store keeps one JSON object per board. Writes within this process are
// serialized; the bucket is assumed to have a single writer.
type s3Store struct {
	client API
	bucket string
	mu     sync.Mutex
}

// NewStore creates a new S3-based store from the default AWS configuration.
func NewStore(ctx context.Context, bucketName string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load SDK config: %w", err)
	}
	return NewStoreWithClient(s3.NewFromConfig(cfg), bucketName), nil
}

func NewStoreWithClient(client API, bucketName string) *s3Store {
	return &s3Store{client: client, bucket: bucketName}
}

func boardKey(id string) (string, error) {
	// ids are simple names, never paths
	if id == "" || path.Base(id) != id || id == "." || id == ".." {
		return "", fmt.Errorf("board %q: %w", id, core.ErrNotFound)
	}
	return keyPrefix + id + ".json", nil
}

func (s *s3Store) load(ctx context.Context, id string) (*boardObject, error) {
	key, err := boardKey(id)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("board %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("get board %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read board %s: %w", id, err)
	}
	var obj boardObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode board %s: %w", id, err)
	}
	if obj.Access == nil {
		obj.Access = make(map[string]core.AccessLevel)
	}
	return &obj, nil
}

func (s *s3Store) store(ctx context.Context, obj *boardObject) error {
	key, err := boardKey(obj.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put board %s: %w", obj.ID, err)
	}
	return nil
}

func (s *s3Store) update(ctx context.Context, id string, fn func(*boardObject) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(obj); err != nil {
		return err
	}
	return s.store(ctx, obj)
}

func (s *s3Store) Create(ctx context.Context, board *core.Board) (string, error) {
	if board.OwnerID == "" {
		return "", fmt.Errorf("owner id is required")
	}
	now := time.Now().UTC()
	obj := &boardObject{
		Board:    *board,
		Document: board.Document,
		Access:   map[string]core.AccessLevel{board.OwnerID: core.AccessEdit},
	}
	obj.ID = ulid.Make().String()
	obj.CreatedAt = now
	obj.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store(ctx, obj); err != nil {
		logrus.WithError(err).WithField("board_id", obj.ID).Error("Failed to create board")
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"board_id": obj.ID,
		"owner_id": board.OwnerID,
		"bucket":   s.bucket,
	}).Info("Board created successfully")
	return obj.ID, nil
}

func (s *s3Store) Get(ctx context.Context, id string) (*core.Board, error) {
	obj, err := s.load(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("board_id", id).Warn("Failed to retrieve board")
		return nil, err
	}
	board := obj.Board
	board.Document = obj.Document
	return &board, nil
}

func (s *s3Store) List(ctx context.Context, userID string) ([]*core.Board, error) {
	log := logrus.WithField("user_id", userID)
	boards := make([]*core.Board, 0)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list boards for user %s: %w", userID, err)
		}
		for _, object := range page.Contents {
			id := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(object.Key), keyPrefix), ".json")
			obj, err := s.load(ctx, id)
			if err != nil {
				log.WithError(err).Warnf("Failed to read board object %s, skipping", aws.ToString(object.Key))
				continue
			}
			if _, ok := obj.Access[userID]; !ok {
				continue
			}
			board := obj.Board
			board.Document = nil
			boards = append(boards, &board)
		}
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].UpdatedAt.After(boards[j].UpdatedAt) })

	log.Infof("Listed %d boards", len(boards))
	return boards, nil
}

func (s *s3Store) SaveDocument(ctx context.Context, id string, document []byte, backgroundURL string) error {
	err := s.update(ctx, id, func(obj *boardObject) error {
		obj.Document = document
		obj.BackgroundURL = backgroundURL
		obj.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("board_id", id).Warn("Failed to save board document")
		return err
	}
	logrus.WithFields(logrus.Fields{"board_id": id, "data_length": len(document)}).Info("Board document saved")
	return nil
}

func (s *s3Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// S3 deletes are idempotent, so existence is checked first
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	key, _ := boardKey(id)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete board %s: %w", id, err)
	}
	logrus.WithField("board_id", id).Info("Board deleted successfully")
	return nil
}

func (s *s3Store) Lookup(ctx context.Context, userID, boardID string) (core.AccessLevel, error) {
	obj, err := s.load(ctx, boardID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.AccessNone, nil
		}
		return core.AccessNone, err
	}
	if level, ok := obj.Access[userID]; ok {
		return level, nil
	}
	return core.AccessNone, nil
}

func (s *s3Store) Grant(ctx context.Context, entry core.AccessEntry) error {
	if _, ok := core.ParseAccessLevel(string(entry.Level)); !ok {
		return fmt.Errorf("invalid access level %q", entry.Level)
	}
	return s.update(ctx, entry.BoardID, func(obj *boardObject) error {
		obj.Access[entry.UserID] = entry.Level
		return nil
	})
}

func (s *s3Store) Revoke(ctx context.Context, userID, boardID string) error {
	return s.update(ctx, boardID, func(obj *boardObject) error {
		if _, ok := obj.Access[userID]; !ok {
			return fmt.Errorf("access entry %s/%s: %w", boardID, userID, core.ErrNotFound)
		}
		delete(obj.Access, userID)
		return nil
	})
}

func (s *s3Store) ListAccess(ctx context.Context, boardID string) ([]core.AccessEntry, error) {
	obj, err := s.load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	entries := make([]core.AccessEntry, 0, len(obj.Access))
	for userID, level := range obj.Access {
		entries = append(entries, core.AccessEntry{UserID: userID, BoardID: boardID, Level: level})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries, nil
}
