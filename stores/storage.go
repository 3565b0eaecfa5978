package stores

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
	"tactics-board/stores/aws"
	"tactics-board/stores/cache"
	"tactics-board/stores/filesystem"
	"tactics-board/stores/memory"
	"tactics-board/stores/postgres"
	"tactics-board/stores/sqlite"
)

// Store is what every backend provides. Snapshot support is optional; see Snapshots.
type Store interface {
	core.BoardStore
	core.AccessStore
}

func GetStore(ctx context.Context) Store {
	storageType := os.Getenv("STORAGE_TYPE")
	var store Store

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := getenv("LOCAL_STORAGE_PATH", "./data")
		storageField["basePath"] = basePath
		fsStore, err := filesystem.NewStore(basePath)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open filesystem storage")
		}
		store = fsStore
	case "sqlite":
		dataSourceName := getenv("DATA_SOURCE_NAME", "tactics.db")
		storageField["dataSourceName"] = dataSourceName
		sqliteStore, err := sqlite.NewStore(dataSourceName)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open sqlite storage")
		}
		store = sqliteStore
	case "postgres":
		pgStore, err := postgres.Open(ctx, os.Getenv("POSTGRES_DSN"))
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open postgres storage")
		}
		store = pgStore
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		storageField["bucketName"] = bucketName
		s3Store, err := aws.NewStore(ctx, bucketName)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create S3 storage")
		}
		store = s3Store
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		ttl, err := time.ParseDuration(getenv("REDIS_TTL", "5m"))
		if err != nil {
			logrus.WithError(err).Fatal("Invalid REDIS_TTL")
		}
		storageField["redis"] = addr
		store = cache.New(store, redis.NewClient(&redis.Options{Addr: addr}), ttl)
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store
}

// Snapshots returns the snapshot capability of store, looking through caches.
func Snapshots(store core.BoardStore) (core.SnapshotStore, bool) {
	if u, ok := store.(interface{ Unwrap() core.BoardStore }); ok {
		return Snapshots(u.Unwrap())
	}
	snapshots, ok := store.(core.SnapshotStore)
	return snapshots, ok
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
