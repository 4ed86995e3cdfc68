// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage defines the store contracts used by ingestion, the
// updater, search and the HTTP API.
//
// The contracts decouple the pipelines from any one database, so the same
// code runs against BadgerDB in tests and against Qdrant, PostgreSQL and
// Neo4j in production.
//
// # Architecture
//
//   - VectorStore: one collection of article embeddings with payloads
//   - ArticleRepository: article metadata keyed by URI
//   - ComboRepository: similarity edges and the current homepage order
//   - CheckpointRepository: completed partitions, for resumable runs
//
// # Implementation Packages
//
//   - storage/badger: every contract on an embedded BadgerDB
//   - storage/qdrant: VectorStore on Qdrant
//   - storage/postgres: ArticleRepository and ComboRepository on PostgreSQL,
//     plus schema migrations
//   - storage/neo4j: ComboRepository as a graph of ECHOES edges
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	stores, err := badger.NewMemoryStores(dim)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer stores.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
