package model

import "github.com/google/uuid"

// RetrievedDocument is a policy chunk returned by nearest-neighbor retrieval.
// Relevance is 1 minus normalized distance, clamped to [0,1]. A query result
// is ordered most relevant first and lives only for the request.
type RetrievedDocument struct {
	DocumentID uuid.UUID `json:"document_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Relevance  float64   `json:"relevance"`
	ChunkIndex int       `json:"chunk_index"`
	SourceFile string    `json:"source_file,omitempty"`
	StartByte  int       `json:"start_byte,omitempty"`
	EndByte    int       `json:"end_byte,omitempty"`
}

// RetrievalResult bundles a query with its ordered matches.
type RetrievalResult struct {
	Query     string              `json:"query"`
	Documents []RetrievedDocument `json:"documents"`
}
