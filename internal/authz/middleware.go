// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package authz

import (
	"net/http"
	"strings"

	"github.com/probelab/linkscope/internal/logging"
)

// Headers carrying the authenticated identity, set by the reverse proxy in
// front of the service. Authentication itself happens upstream.
const (
	SubjectHeader = "X-Auth-Subject"
	RolesHeader   = "X-Auth-Roles"
)

// Middleware gates API routes on the Casbin enforcer. When disabled it
// passes every request through.
type Middleware struct {
	enforcer *Enforcer
	enabled  bool
}

// NewMiddleware creates authorization middleware. A nil enforcer or
// enabled=false disables enforcement.
func NewMiddleware(enforcer *Enforcer, enabled bool) *Middleware {
	return &Middleware{
		enforcer: enforcer,
		enabled:  enabled && enforcer != nil,
	}
}

// Authorize enforces that the request's subject may perform action on object.
// Intended for chi's Route/With chaining.
func (m *Middleware) Authorize(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.enabled {
				next.ServeHTTP(w, r)
				return
			}

			subject := r.Header.Get(SubjectHeader)
			roles := splitRoles(r.Header.Get(RolesHeader))

			allowed, err := m.enforcer.EnforceWithRoles(subject, roles, object, action)
			if err != nil {
				logging.Error().Err(err).Str("object", object).Str("action", action).
					Msg("authorization error")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func splitRoles(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	roles := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
