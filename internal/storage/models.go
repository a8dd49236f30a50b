package storage

// DefaultCollection is the single collection holding all document chunks.
const DefaultCollection = "learnix_documents"

// Payload field names shared by both index backends.
const (
	FieldText        = "text"
	FieldFilename    = "filename"
	FieldChunkIndex  = "chunk_index"
	FieldTotalChunks = "total_chunks"
)

// Point is one indexed chunk: a deterministic ID, its embedding vector, and
// the retrieval payload. IDs are a pure function of (filename, chunk index),
// so re-ingesting a file overwrites its points instead of duplicating them.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Payload carries the chunk text and the metadata returned with search hits.
// Extra holds caller-supplied metadata (string or numeric values).
type Payload struct {
	Text        string
	Filename    string
	ChunkIndex  int
	TotalChunks int
	Extra       map[string]any
}

// SearchHit is one ranked retrieval result. Score is cosine similarity;
// results are ordered by descending score with ties kept in insertion order.
type SearchHit struct {
	Text       string  `json:"text"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Filter restricts a search to points matching all set fields.
type Filter struct {
	Filename string
}

// CollectionStats is a diagnostic snapshot of the collection.
type CollectionStats struct {
	Name         string `json:"name"`
	PointsCount  uint64 `json:"points_count"`
	VectorsCount uint64 `json:"vectors_count"`
	Status       string `json:"status"`
}
