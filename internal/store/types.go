package store

import "time"

// Document is a unit of corpus content. The ID is assigned by the store at
// insertion and the document is immutable afterwards; the only mutation is an
// explicit Delete, which also removes its embedding.
type Document struct {
	ID        string
	Content   string         // must be non-empty
	Metadata  map[string]any // optional descriptive metadata, stored as JSONB
	SourceURL string         // optional origin URL
	CreatedAt time.Time
}

// Match is a single nearest-neighbor result.
// Similarity is cosine similarity in [0,1]; Distance is the raw cosine
// distance, so Similarity == 1 - Distance. Results depend only on vector
// direction, never magnitude.
type Match struct {
	Document   Document
	Similarity float32
	Distance   float32
}
