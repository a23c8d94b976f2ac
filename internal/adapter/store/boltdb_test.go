package store

import (
	"path/filepath"
	"reflect"
	"testing"

	"kge/internal/domain"
)

type mapSource map[uint64][]int64

func (m mapSource) ForEach(fn func(hash uint64, offsets []int64) error) error {
	for h, offs := range m {
		if err := fn(h, offs); err != nil {
			return err
		}
	}
	return nil
}

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveAndLoadBuckets(t *testing.T) {
	st := openTestStore(t)

	src := mapSource{
		1:          {0},
		42:         {10, 250, 1 << 40},
		^uint64(0): {7, 3},
	}
	if err := st.SaveBuckets(src); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := make(map[uint64][]int64)
	err := st.LoadBuckets(func(hash uint64, offsets []int64) error {
		loaded[hash] = offsets
		return nil
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !reflect.DeepEqual(map[uint64][]int64(src), loaded) {
		t.Errorf("round trip mismatch: got %v, want %v", loaded, src)
	}

	n, err := st.BucketCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 buckets, got %d", n)
	}
}

func TestOffsetsEncoding(t *testing.T) {
	cases := [][]int64{
		{},
		{0},
		{5, 5, 5},
		{100, 50, 1 << 50},
	}
	for _, offs := range cases {
		got, err := decodeOffsets(encodeOffsets(offs))
		if err != nil {
			t.Fatalf("decode %v: %v", offs, err)
		}
		if len(got) != len(offs) {
			t.Fatalf("expected %d offsets, got %d", len(offs), len(got))
		}
		for i := range offs {
			if got[i] != offs[i] {
				t.Errorf("offset %d: expected %d, got %d", i, offs[i], got[i])
			}
		}
	}

	if _, err := decodeOffsets([]byte{}); err == nil {
		t.Error("expected error for empty payload")
	}
	if _, err := decodeOffsets([]byte{5, 1}); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestCheckMigration(t *testing.T) {
	st := openTestStore(t)
	fp := CorpusFingerprint{Path: "/data/entities.tsv", Size: 100, ModTime: 1, Hasher: "fnv1a64/64", Delimiter: "\t"}

	result, err := st.CheckMigration(fp)
	if err != nil {
		t.Fatal(err)
	}
	if !result.NeedsRebuild {
		t.Error("empty store should need a rebuild")
	}

	if err := st.Commit(fp); err != nil {
		t.Fatal(err)
	}
	result, err = st.CheckMigration(fp)
	if err != nil {
		t.Fatal(err)
	}
	if result.NeedsRebuild {
		t.Errorf("committed store should be reusable, got reason %q", result.Reason)
	}

	changed := fp
	changed.Size = 101
	result, err = st.CheckMigration(changed)
	if err != nil {
		t.Fatal(err)
	}
	if !result.NeedsRebuild || result.Reason != "corpus or index configuration changed" {
		t.Errorf("expected rebuild on changed corpus, got %+v", result)
	}

	if err := st.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion + 1, Fingerprint: fp.Hash()}); err != nil {
		t.Fatal(err)
	}
	result, err = st.CheckMigration(fp)
	if err != nil {
		t.Fatal(err)
	}
	if !result.NeedsRebuild {
		t.Error("expected rebuild on schema version change")
	}
}

func TestClear(t *testing.T) {
	st := openTestStore(t)
	fp := CorpusFingerprint{Path: "x"}

	if err := st.SaveBuckets(mapSource{1: {0}}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateStats(domain.IndexStats{Records: 1}); err != nil {
		t.Fatal(err)
	}
	if err := st.Commit(fp); err != nil {
		t.Fatal(err)
	}

	if err := st.Clear(); err != nil {
		t.Fatal(err)
	}

	n, _ := st.BucketCount()
	if n != 0 {
		t.Errorf("expected no buckets after clear, got %d", n)
	}
	stats, _ := st.GetStats()
	if stats.Records != 0 {
		t.Errorf("expected stats cleared, got %+v", stats)
	}
	result, _ := st.CheckMigration(fp)
	if !result.NeedsRebuild {
		t.Error("cleared store should need a rebuild")
	}
}

func TestStatsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	want := domain.IndexStats{Records: 10, Buckets: 9, CollidedBuckets: 1, MaxBucket: 2, SkippedLines: 3, BytesScanned: 400}
	if err := st.UpdateStats(want); err != nil {
		t.Fatal(err)
	}
	got, err := st.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
