package core

import "time"

// Document is a unit of retrieved content. Documents are immutable once
// stored: the fetch step creates them, the vector store indexes them, and
// conversation states reference them without owning them.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Content   string    `json:"content,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`

	// Embedding is the fixed-dimension vector tied 1:1 to the document id.
	// Empty until the embed capability has run.
	Embedding []float32 `json:"embedding,omitempty"`
}

// CondensedInsight is the distiller's bounded-size extraction from a single
// document: structured findings rather than verbatim prose.
type CondensedInsight struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Findings   string `json:"findings"`
	// Tokens is the estimated token count of Findings, bounded by the
	// distillation budget.
	Tokens    int  `json:"tokens"`
	FromCache bool `json:"from_cache,omitempty"`
}

// ScoredDocument pairs a document with its similarity score for a query
// embedding. Returned by vector store searches in descending score order.
type ScoredDocument struct {
	Document   Document `json:"document"`
	Similarity float64  `json:"similarity"`
}
