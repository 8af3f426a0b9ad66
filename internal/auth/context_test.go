// ABOUTME: Unit tests for identity helpers and context propagation
// ABOUTME: Tests HasRole, IsAdmin, and WithIdentity/FromContext round trips

package auth

import (
	"context"
	"testing"
)

func TestIdentity_IsAdmin_True(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
	}{
		{
			name:  "admin role",
			roles: []string{"admin"},
		},
		{
			name:  "owner role",
			roles: []string{"owner"},
		},
		{
			name:  "admin with other roles",
			roles: []string{"member", "admin", "viewer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := &Identity{
				UserID: "test-user",
				Roles:  tt.roles,
			}

			if !id.IsAdmin() {
				t.Errorf("IsAdmin() = false, want true for roles %v", tt.roles)
			}
		})
	}
}

func TestIdentity_IsAdmin_False(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
	}{
		{
			name:  "no roles",
			roles: []string{},
		},
		{
			name:  "nil roles",
			roles: nil,
		},
		{
			name:  "member role only",
			roles: []string{"member"},
		},
		{
			name:  "multiple non-admin roles",
			roles: []string{"member", "viewer", "reader"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := &Identity{
				UserID: "test-user",
				Roles:  tt.roles,
			}

			if id.IsAdmin() {
				t.Errorf("IsAdmin() = true, want false for roles %v", tt.roles)
			}
		})
	}
}

func TestIdentity_Key(t *testing.T) {
	bearer := &Identity{UserID: "user-1"}
	if bearer.Key() != "user:user-1" {
		t.Errorf("Key() = %q, want user:user-1", bearer.Key())
	}

	keyed := &Identity{UserID: "user-1", APIKeyID: "k-9"}
	if keyed.Key() != "key:k-9" {
		t.Errorf("Key() = %q, want key:k-9", keyed.Key())
	}

	anon := &Identity{Anonymous: true}
	if anon.Key() != "" {
		t.Errorf("anonymous Key() = %q, want empty", anon.Key())
	}
}

func TestFromContext_Present(t *testing.T) {
	expected := &Identity{
		UserID: "test-id",
		Email:  "dev@example.com",
		Roles:  []string{"admin"},
	}

	ctx := WithIdentity(context.Background(), expected)
	got := FromContext(ctx)

	if got == nil {
		t.Fatal("FromContext() = nil, want non-nil")
	}

	if got.UserID != expected.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, expected.UserID)
	}

	if got.Email != expected.Email {
		t.Errorf("Email = %q, want %q", got.Email, expected.Email)
	}

	if len(got.Roles) != len(expected.Roles) {
		t.Errorf("Roles = %v, want %v", got.Roles, expected.Roles)
	}
}

func TestFromContext_Missing(t *testing.T) {
	ctx := context.Background()
	got := FromContext(ctx)

	if got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}
