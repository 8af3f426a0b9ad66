// ABOUTME: Authenticated identity type and context propagation helpers
// ABOUTME: Provides WithIdentity/FromContext for carrying identity through handlers

package auth

import (
	"context"
)

// Identity is the resolved caller of a connection or request. It is
// produced by the Gate from exactly one credential kind, or marked
// anonymous in debug admission.
type Identity struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	APIKeyID  string   `json:"api_key_id,omitempty"`
	Anonymous bool     `json:"anonymous,omitempty"`
}

// HasRole reports whether the identity carries the given role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the identity has admin or owner role.
func (id *Identity) IsAdmin() bool {
	return id.HasRole("admin") || id.HasRole("owner")
}

// Key returns the stable rate-limit and audit key for this identity.
// Bearer identities key on the user, API-key identities on the key id, so
// one caller cannot starve another. Anonymous identities have no stable
// key and return "".
func (id *Identity) Key() string {
	switch {
	case id.APIKeyID != "":
		return "key:" + id.APIKeyID
	case id.UserID != "":
		return "user:" + id.UserID
	}
	return ""
}

// identityKey is the key type for storing an Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
