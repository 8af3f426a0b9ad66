// Package auth provides identity resolution and admission control for
// conhub-gateway.
//
// # Credential Kinds
//
// A connection presents exactly one of two credential kinds:
//
//   - JWT Bearer Tokens: signed with HS256 using the configured
//     jwt_secret. The "sub" claim is required and becomes the user id;
//     "email" and "roles" claims are carried into the identity.
//
//   - API Keys: verified by delegating to the external authentication
//     service (POST /api/auth/validate-key). Only a 200 response with a
//     user id yields an identity. Positive verdicts are cached briefly
//     so hot keys do not hammer the auth service.
//
// When both are present, a valid bearer token wins. In debug
// configuration, absence of any credential admits an anonymous identity
// for local development; otherwise it is a hard rejection.
//
// # Rate Limiting
//
// The Gate enforces a sliding-window admission limit per caller. Bearer
// identities key on the user id, API-key identities on the key id, and
// anonymous callers fall back to the remote address. Check and record
// are atomic; rejection carries a retry-after-60-seconds signal.
//
// # Admin Surface
//
// HTTPAuthMiddleware and RequireAdminHTTP gate the admin API: bearer
// token only, admin or owner role required.
package auth
