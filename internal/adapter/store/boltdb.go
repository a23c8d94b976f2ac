package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"kge/internal/domain"
	"kge/internal/port"
)

var (
	bucketOffsets = []byte("offsets")
	bucketMeta    = []byte("meta")
	keyStats      = []byte("index_stats")
)

// saveBatchSize bounds the number of buckets written per transaction.
const saveBatchSize = 100_000

var errCorruptBucket = errors.New("corrupt offset bucket")

// BoltStore persists an offset index in a bbolt file next to the corpus.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketOffsets, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

type pendingBucket struct {
	key   []byte
	value []byte
}

// SaveBuckets writes every bucket of src. Existing buckets are kept; call
// Clear first to replace an index.
func (s *BoltStore) SaveBuckets(src port.BucketSource) error {
	pending := make([]pendingBucket, 0, saveBatchSize)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		sort.Slice(pending, func(i, j int) bool {
			return string(pending[i].key) < string(pending[j].key)
		})
		err := s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket(bucketOffsets)
			b.FillPercent = 0.9
			for _, p := range pending {
				if err := b.Put(p.key, p.value); err != nil {
					return err
				}
			}
			return nil
		})
		pending = pending[:0]
		return err
	}

	err := src.ForEach(func(hash uint64, offsets []int64) error {
		pending = append(pending, pendingBucket{
			key:   encodeHash(hash),
			value: encodeOffsets(offsets),
		})
		if len(pending) >= saveBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save offset buckets: %w", err)
	}
	return flush()
}

// LoadBuckets streams every stored bucket to fn.
func (s *BoltStore) LoadBuckets(fn func(hash uint64, offsets []int64) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOffsets).ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("%w: key length %d", errCorruptBucket, len(k))
			}
			offsets, err := decodeOffsets(v)
			if err != nil {
				return err
			}
			return fn(binary.BigEndian.Uint64(k), offsets)
		})
	})
}

// BucketCount returns the number of stored buckets.
func (s *BoltStore) BucketCount() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketOffsets).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) GetStats() (domain.IndexStats, error) {
	var stats domain.IndexStats
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyStats)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stats)
	})
	return stats, err
}

func (s *BoltStore) UpdateStats(stats domain.IndexStats) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyStats, data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func encodeHash(hash uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, hash)
	return key
}

// encodeOffsets packs offsets as a uvarint count followed by varint deltas.
func encodeOffsets(offsets []int64) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64*(len(offsets)+1))
	buf = binary.AppendUvarint(buf, uint64(len(offsets)))
	var prev int64
	for _, off := range offsets {
		buf = binary.AppendVarint(buf, off-prev)
		prev = off
	}
	return buf
}

func decodeOffsets(data []byte) ([]int64, error) {
	n, read := binary.Uvarint(data)
	if read <= 0 {
		return nil, fmt.Errorf("%w: bad count", errCorruptBucket)
	}
	data = data[read:]
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("%w: count %d exceeds payload", errCorruptBucket, n)
	}

	offsets := make([]int64, 0, n)
	var prev int64
	for i := uint64(0); i < n; i++ {
		delta, read := binary.Varint(data)
		if read <= 0 {
			return nil, fmt.Errorf("%w: bad delta at %d", errCorruptBucket, i)
		}
		data = data[read:]
		prev += delta
		offsets = append(offsets, prev)
	}
	return offsets, nil
}
