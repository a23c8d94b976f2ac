package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyFingerprint   = []byte("corpus_fingerprint")
)

// SchemaInfo stores schema version and corpus fingerprint.
type SchemaInfo struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
}

// CorpusFingerprint identifies the exact corpus file and indexing parameters
// an offset index is valid for.
type CorpusFingerprint struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	ModTime   int64  `json:"mod_time"`
	Hasher    string `json:"hasher"`
	Delimiter string `json:"delimiter"`
}

// Hash returns a short stable digest of the fingerprint.
func (f CorpusFingerprint) Hash() string {
	data, _ := json.Marshal(f)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				return fmt.Errorf("invalid schema version: %w", err)
			}
		}
		if fp := b.Get(keyFingerprint); fp != nil {
			info.Fingerprint = string(fp)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database. It is written last,
// after all buckets, so an interrupted save leaves no fingerprint behind.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		return b.Put(keyFingerprint, []byte(info.Fingerprint))
	})
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsRebuild bool
	OldVersion   int
	NewVersion   int
	Reason       string
}

// CheckMigration reports whether the stored index can serve the corpus
// identified by fp.
func (s *BoltStore) CheckMigration(fp CorpusFingerprint) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0 || info.Fingerprint == "":
		result.NeedsRebuild = true
		result.Reason = "no complete index stored"
	case info.Version != CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("schema version changed (v%d -> v%d)", info.Version, CurrentSchemaVersion)
	case info.Fingerprint != fp.Hash():
		result.NeedsRebuild = true
		result.Reason = "corpus or index configuration changed"
	}

	return result, nil
}

// Commit marks the stored buckets as a complete index for fp.
func (s *BoltStore) Commit(fp CorpusFingerprint) error {
	return s.SetSchemaInfo(&SchemaInfo{
		Version:     CurrentSchemaVersion,
		Fingerprint: fp.Hash(),
	})
}

// Clear removes all buckets and the fingerprint (for rebuild).
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketOffsets); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketOffsets); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Delete(keyFingerprint); err != nil {
			return err
		}
		return meta.Delete(keyStats)
	})
}
