// Package ingestion runs partitioned work through a pool of workers.
//
// A Pipeline pulls partition keys from a Queue, loads each partition with a
// Loader, transforms the records with a Stage, splits the survivors into
// chunks and persists one chunk at a time. Failures are sent to a single
// Reporter goroutine over a bounded channel; the channel is closed once
// every worker has returned, and Run waits for the reporter to drain it.
//
// Three stages are provided:
//   - IndexStage embeds a field of each archive article and upserts the
//     vectors into a storage.VectorStore
//   - LoadStage upserts archive articles into a storage.ArticleRepository
//   - PayloadStage rewrites vector payloads without embedding again
package ingestion
