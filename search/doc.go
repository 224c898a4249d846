// Package search answers similarity queries against the vector index.
// A query is embedded (through the shared embedding cache), matched
// against stored items by cosine similarity, and filtered by a strict
// minimum threshold.
package search
