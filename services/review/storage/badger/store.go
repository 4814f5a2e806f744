// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianReview/services/review/index"
)

// BadgerDB key prefixes for index snapshots.
const (
	keyPrefixIdx    = "review:idx:"
	keySuffixData   = ":data"
	keySuffixMeta   = ":meta"
	keySuffixLatest = ":latest"
)

// ErrSnapshotNotFound indicates no persisted snapshot matches the key.
var ErrSnapshotNotFound = errors.New("persisted snapshot not found")

// SnapshotMetadata describes one persisted index snapshot.
type SnapshotMetadata struct {
	// RepoID is the repository identifier the snapshot belongs to.
	RepoID string `json:"repo_id"`

	// RepoHash is SHA256(RepoID)[:16] used for key grouping.
	RepoHash string `json:"repo_hash"`

	// CommitSHA is the commit the snapshot was published for.
	CommitSHA string `json:"commit_sha"`

	// SchemaVersion is the serialization schema version.
	SchemaVersion string `json:"schema_version"`

	// CreatedAtMilli is when the snapshot was saved (Unix milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at_milli"`

	// Definitions and Files are snapshot content counts.
	Definitions int `json:"definitions"`
	Files       int `json:"files"`

	// CompressedSize is the size of the gzip-compressed JSON payload.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 hash of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// SnapshotStore manages saving and loading index snapshots in BadgerDB.
//
// Description:
//
//	Stores each published snapshot as gzip-compressed JSON plus a
//	metadata record, with a per-repository latest pointer.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotStore struct {
	db     *DB
	logger *slog.Logger
}

// NewSnapshotStore creates a SnapshotStore over an opened database.
func NewSnapshotStore(db *DB, logger *slog.Logger) (*SnapshotStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{db: db, logger: logger}, nil
}

// Save persists one published snapshot.
//
// Key Schema:
//
//	review:idx:{repoHash}:{commitSHA}:data → gzip(JSON(SerializableSnapshot))
//	review:idx:{repoHash}:{commitSHA}:meta → JSON(SnapshotMetadata)
//	review:idx:{repoHash}:latest           → commitSHA
func (s *SnapshotStore) Save(ctx context.Context, repoID string, snap *index.Snapshot) (*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if repoID == "" {
		return nil, fmt.Errorf("repo ID must not be empty")
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot must not be nil")
	}

	ss := snap.ToSerializable()
	jsonData, err := json.Marshal(ss)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	stats := snap.Stats()
	meta := &SnapshotMetadata{
		RepoID:         repoID,
		RepoHash:       RepoHash(repoID),
		CommitSHA:      snap.CommitSHA(),
		SchemaVersion:  index.SnapshotSchemaVersion,
		CreatedAtMilli: time.Now().UnixMilli(),
		Definitions:    stats.Definitions,
		Files:          stats.Files,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	dataKey := snapKey(meta.RepoHash, meta.CommitSHA, keySuffixData)
	metaKey := snapKey(meta.RepoHash, meta.CommitSHA, keySuffixMeta)
	latestKey := keyPrefixIdx + meta.RepoHash + keySuffixLatest

	err = s.db.Update(func(txn *dgbadger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(meta.CommitSHA)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	s.logger.Info("index snapshot saved",
		slog.String("repo", repoID),
		slog.String("commit", meta.CommitSHA),
		slog.Int("definitions", meta.Definitions),
		slog.Int64("compressed_size", meta.CompressedSize))
	return meta, nil
}

// Load retrieves a snapshot for one commit.
func (s *SnapshotStore) Load(ctx context.Context, repoID, commitSHA string) (*index.Snapshot, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if repoID == "" || commitSHA == "" {
		return nil, nil, fmt.Errorf("repo ID and commit SHA must not be empty")
	}
	return s.loadByKeys(RepoHash(repoID), commitSHA)
}

// LoadLatest loads the most recently saved snapshot for a repository.
func (s *SnapshotStore) LoadLatest(ctx context.Context, repoID string) (*index.Snapshot, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if repoID == "" {
		return nil, nil, fmt.Errorf("repo ID must not be empty")
	}

	repoHash := RepoHash(repoID)
	latestKey := keyPrefixIdx + repoHash + keySuffixLatest
	var commitSHA string
	err := s.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			commitSHA = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil, nil, fmt.Errorf("repo %s: %w", repoID, ErrSnapshotNotFound)
		}
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", repoID, err)
	}
	return s.loadByKeys(repoHash, commitSHA)
}

// List returns metadata for a repository's persisted snapshots, newest
// first.
func (s *SnapshotStore) List(ctx context.Context, repoID string, limit int) ([]*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if limit <= 0 {
		limit = 100
	}

	prefix := keyPrefixIdx
	if repoID != "" {
		prefix = keyPrefixIdx + RepoHash(repoID) + ":"
	}

	var results []*SnapshotMetadata
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !isMetaKey(key) {
				continue
			}
			var meta SnapshotMetadata
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				s.logger.Warn("skipping corrupt metadata",
					slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes one persisted snapshot. If it was the latest, the
// latest pointer is removed too.
func (s *SnapshotStore) Delete(ctx context.Context, repoID, commitSHA string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if repoID == "" || commitSHA == "" {
		return fmt.Errorf("repo ID and commit SHA must not be empty")
	}

	repoHash := RepoHash(repoID)
	dataKey := snapKey(repoHash, commitSHA, keySuffixData)
	metaKey := snapKey(repoHash, commitSHA, keySuffixMeta)
	latestKey := keyPrefixIdx + repoHash + keySuffixLatest

	err := s.db.Update(func(txn *dgbadger.Txn) error {
		if err := txn.Delete([]byte(dataKey)); err != nil && err != dgbadger.ErrKeyNotFound {
			return fmt.Errorf("deleting data: %w", err)
		}
		if err := txn.Delete([]byte(metaKey)); err != nil && err != dgbadger.ErrKeyNotFound {
			return fmt.Errorf("deleting metadata: %w", err)
		}

		item, err := txn.Get([]byte(latestKey))
		if err == nil {
			var currentLatest string
			_ = item.Value(func(val []byte) error {
				currentLatest = string(val)
				return nil
			})
			if currentLatest == commitSHA {
				if err := txn.Delete([]byte(latestKey)); err != nil && err != dgbadger.ErrKeyNotFound {
					return fmt.Errorf("deleting latest pointer: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s@%s: %w", repoID, commitSHA, err)
	}

	s.logger.Info("index snapshot deleted",
		slog.String("repo", repoID), slog.String("commit", commitSHA))
	return nil
}

// loadByKeys loads and verifies a snapshot with known repoHash and commit.
func (s *SnapshotStore) loadByKeys(repoHash, commitSHA string) (*index.Snapshot, *SnapshotMetadata, error) {
	dataKey := snapKey(repoHash, commitSHA, keySuffixData)
	metaKey := snapKey(repoHash, commitSHA, keySuffixMeta)

	var compressedData, metaJSON []byte
	err := s.db.View(func(txn *dgbadger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey))
		if err != nil {
			return err
		}
		compressedData, err = dataItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying data for %s: %w", commitSHA, err)
		}

		metaItem, err := txn.Get([]byte(metaKey))
		if err != nil {
			return err
		}
		metaJSON, err = metaItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying metadata for %s: %w", commitSHA, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil, nil, fmt.Errorf("commit %s: %w", commitSHA, ErrSnapshotNotFound)
		}
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", commitSHA, err)
	}
	if actual := hashBytes(compressedData); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s",
			commitSHA, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", commitSHA, err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", commitSHA, err)
	}

	var ss index.SerializableSnapshot
	if err := json.Unmarshal(jsonData, &ss); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling snapshot for %s: %w", commitSHA, err)
	}
	return index.FromSerializable(&ss), &meta, nil
}

// RepoHash returns SHA256(repoID)[:16] for use as a key prefix.
func RepoHash(repoID string) string {
	h := sha256.Sum256([]byte(repoID))
	return hex.EncodeToString(h[:])[:16]
}

// hashBytes returns the hex-encoded SHA256 hash of a byte slice.
func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func snapKey(repoHash, commitSHA, suffix string) string {
	return keyPrefixIdx + repoHash + ":" + commitSHA + suffix
}

func isMetaKey(key string) bool {
	return len(key) > len(keySuffixMeta) && key[len(key)-len(keySuffixMeta):] == keySuffixMeta
}
