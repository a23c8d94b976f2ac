package port

// OffsetIndex maps a key hash to the byte offsets of the corpus records
// sharing that hash, in scan order.
type OffsetIndex interface {
	Lookup(hash uint64) []int64

	Len() int
}

// BucketSource iterates the buckets of an offset index.
type BucketSource interface {
	ForEach(fn func(hash uint64, offsets []int64) error) error
}

// IndexStore persists an offset index between process restarts.
type IndexStore interface {
	// SaveBuckets replaces the stored buckets with those of src.
	SaveBuckets(src BucketSource) error

	// LoadBuckets streams every stored bucket to fn.
	LoadBuckets(fn func(hash uint64, offsets []int64) error) error

	Close() error
}
