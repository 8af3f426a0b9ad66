// ABOUTME: Documentation for the search package.
// ABOUTME: Explains the knowledge service client and the query pipeline.

// Package search talks to the knowledge and embeddings services on
// behalf of the engine's tools.
//
// # Client
//
// Client wraps three knowledge service endpoints and one embeddings
// endpoint:
//
//   - POST /api/v1/search/semantic, bounded by the configured timeout
//     (30 seconds unless overridden). The payload passes through
//     verbatim as json.RawMessage.
//   - POST /api/v1/search/hybrid, bounded by twice the timeout since
//     graph traversal is slower. The payload decodes into HybridResult.
//   - GET /health, bounded by 5 seconds.
//   - POST /api/v1/generate on the embeddings service, turning query
//     text into a vector.
//
// Non-2xx replies surface as *StatusError so callers can report the
// status code; timeouts surface as context.DeadlineExceeded wrapped in
// the transport error.
//
// # Pipeline
//
// Processor runs the hybrid retrieval pipeline. Tokenization and
// vectorization run concurrently under an errgroup; a vectorization
// failure fails the whole run, so retrieval never executes with an
// empty vector. The resulting vectors ride along in the hybrid request
// body as query_vectors.
//
// FormatResponse shapes a pipeline Result for tool consumption: one
// content item per chunk, addressed by a confuse://chunk/<id> URI and
// carrying score, chunk type, and source id metadata.
package search
