// Package ingestion provides the fetch → embed → upsert pipeline for one
// source channel.
//
// Each RunSync call reads the channel's sync cursor, pages through the source
// connector from that position, embeds cache misses in bounded batches, and
// upserts whole pages into the vector index. The cursor is persisted once per
// run, computed only from fully-upserted pages, so a crash mid-run leaves it
// untouched and the next run safely re-fetches and re-upserts.
//
// At most one run is active per channel; a concurrent request observes an
// "already running" status and performs no I/O.
package ingestion
