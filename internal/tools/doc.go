// ABOUTME: Documentation for the tools package.
// ABOUTME: Explains tool registration, dispatch, and failure payloads.

// Package tools holds the engine's tool registry and the knowledge
// search tools it serves.
//
// # Registry
//
// Registry maps tool names to handlers plus the listing metadata that
// tools/list returns. Registration order is preserved in listings.
// Calls against unregistered names fail with ErrUnknownTool, which the
// engine's server maps to a JSON-RPC invalid params error.
//
// # Tools
//
// Three tools ship with the engine:
//
//   - search_knowledge: semantic vector search. The knowledge service's
//     payload passes through verbatim.
//   - search_knowledge_hybrid: vector search combined with graph
//     traversal, run through the search.Processor pipeline and gated by
//     the hybridSearch feature toggle.
//   - health_check: probes the knowledge service's liveness endpoint.
//
// # Failure shape
//
// A tool failure an agent should see is a normal result carrying
// {"error": ..., "results": [], "total": 0}, never a protocol error.
// Timeouts and bad statuses keep their established message forms
// ("Search timed out after N seconds", "Search failed: <code>") so
// agents that match on them keep working.
//
// Arguments decode over pre-set defaults: limit 10 (clamped to [1,50]),
// similarity_threshold 0.75 (reset when outside [0,1]), include_related
// true, max_depth 2 (clamped to [1,3]).
package tools
