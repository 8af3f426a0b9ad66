// Package toggle checks feature toggles against the platform toggle
// service.
//
// # Contract
//
// A toggle is resolved with GET /api/toggles/<name> under a 5 second
// timeout. A 200 response carries an enabled field; 404 means the toggle
// does not exist and the caller's default applies. Any failure, timeout,
// or unreachable service also yields the default: features fail toward
// disabled unless the caller says otherwise.
//
// # Caching
//
// Definite verdicts are cached for 60 seconds in an expirable LRU so
// per-call checks on hot paths do not turn into request storms. Misses
// and failures are never cached; the next check retries the service.
package toggle
