// Package session tracks live client sessions for the gateway.
//
// # Ownership
//
// The Registry is the single owner of session records. Connection
// handlers hold only session ids and read state through snapshots, so a
// handler can never mutate a session behind the registry's back and a
// removed session can never be resurrected through a stale pointer.
//
// # Lifecycle
//
// Sessions are created in the connecting state once a client passes
// admission, advance through initializing to ready as the MCP handshake
// completes, and leave the registry either when their connection closes
// or when the idle-expiry sweep collects them.
//
// # Capacity
//
// Create checks capacity and inserts under one lock. When the registry
// is full it returns ErrCapacity and the caller rejects the connection;
// nothing is ever queued.
//
// # Expiry
//
// Run sweeps the registry on a fixed interval, removing sessions whose
// last activity predates the idle timeout. Touch refreshes activity and
// counts the request, so active sessions are never collected.
package session
