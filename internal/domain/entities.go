package domain

// RelationEmbedding is a complex-valued relation embedding split into its
// real and imaginary components for the left and right hand sides.
type RelationEmbedding struct {
	LHSReal []float64 `json:"lhs_real"`
	LHSImag []float64 `json:"lhs_imag"`
	RHSReal []float64 `json:"rhs_real"`
	RHSImag []float64 `json:"rhs_imag"`
}

// EntityResult is the outcome of resolving one entity URI.
// Record holds the raw corpus line (without its line terminator) when Found.
type EntityResult struct {
	Key    string
	Found  bool
	Record string
}

// RelationResult is the outcome of resolving one relation URI.
type RelationResult struct {
	Key       string
	Found     bool
	Embedding RelationEmbedding
}

// EntityMiss returns the not-found result for key.
func EntityMiss(key string) EntityResult {
	return EntityResult{Key: key}
}

// RelationMiss returns the not-found result for key.
func RelationMiss(key string) RelationResult {
	return RelationResult{Key: key}
}

// BatchRequest is an ordered list of entity URIs and relation URIs.
type BatchRequest struct {
	Entities  []string `json:"entities"`
	Relations []string `json:"relations"`
}

// BatchResult holds results index-aligned with the BatchRequest lists.
type BatchResult struct {
	Entities  []EntityResult
	Relations []RelationResult
}

// IndexStats describes a built offset index.
type IndexStats struct {
	Records         int   `json:"records"`
	Buckets         int   `json:"buckets"`
	CollidedBuckets int   `json:"collided_buckets"`
	MaxBucket       int   `json:"max_bucket"`
	SkippedLines    int   `json:"skipped_lines"`
	BytesScanned    int64 `json:"bytes_scanned"`
}

// RelationStats describes a loaded relation corpus.
type RelationStats struct {
	Files      int `json:"files"`
	Relations  int `json:"relations"`
	Duplicates int `json:"duplicates"`
}
