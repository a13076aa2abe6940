// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package authz gates the API with Casbin RBAC. Roles form a hierarchy
// (viewer < editor < admin) over the API's objects: events, reports, rules,
// runs, baselines, and ingest. Identity arrives from a fronting reverse
// proxy; decisions are cached with a TTL.
package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

// The embedded model and policy cover deployments that never mount their own
// files. A mounted policy file overrides both and can auto-reload.

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig configures the Casbin enforcer.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when it names an existing file.
	ModelPath string

	// PolicyPath overrides the embedded policy when it names an existing
	// file. Only file-backed policies can auto-reload.
	PolicyPath string

	// AutoReload re-reads a file-backed policy periodically.
	AutoReload     bool
	ReloadInterval time.Duration

	// DefaultRole is assumed for requests that carry no roles at all.
	DefaultRole string

	// CacheEnabled caches enforcement decisions for CacheTTL.
	CacheEnabled bool
	CacheTTL     time.Duration
}

// DefaultEnforcerConfig returns the production defaults: embedded policy,
// viewer fallback, 5 minute decision cache.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		AutoReload:     true,
		ReloadInterval: 30 * time.Second,
		DefaultRole:    "viewer",
		CacheEnabled:   true,
		CacheTTL:       5 * time.Minute,
	}
}

// Enforcer answers subject/object/action questions, with an optional TTL
// cache in front of Casbin.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *enforcementCache
}

// NewEnforcer builds an enforcer from the config, falling back to the
// embedded model and policy when no file paths are set.
func NewEnforcer(config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	var m model.Model
	var err error
	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("loading rbac model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" && fileExists(config.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("building rbac enforcer: %w", err)
	}

	if config.AutoReload && config.PolicyPath != "" {
		enforcer.StartAutoLoadPolicy(config.ReloadInterval)
	}

	e := &Enforcer{config: config, enforcer: enforcer}
	if config.CacheEnabled {
		e.cache = newEnforcementCache(config.CacheTTL)
	}
	return e, nil
}

// loadEmbeddedPolicy feeds the embedded CSV into an adapterless enforcer.
// Lines are "p, role, object, action" or "g, member, role"; blanks and
// comments are skipped.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		switch {
		case fields[0] == "p" && len(fields) >= 4:
			if _, err := enforcer.AddPolicy(fields[1], fields[2], fields[3]); err != nil {
				return fmt.Errorf("policy line %q: %w", line, err)
			}
		case fields[0] == "g" && len(fields) >= 3:
			if _, err := enforcer.AddGroupingPolicy(fields[1], fields[2]); err != nil {
				return fmt.Errorf("grouping line %q: %w", line, err)
			}
		}
	}
	return nil
}

// Enforce reports whether subject may perform action on object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(subject, object, action); ok {
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("rbac check: %w", err)
	}
	if e.cache != nil {
		e.cache.set(subject, object, action, allowed)
	}
	return allowed, nil
}

// EnforceWithRoles tries the subject itself, then each supplied role. The
// default role applies only to requests that carried no roles, so a request
// that names weaker roles is not silently upgraded.
func (e *Enforcer) EnforceWithRoles(subject string, roles []string, object, action string) (bool, error) {
	if subject != "" {
		allowed, err := e.Enforce(subject, object, action)
		if err != nil || allowed {
			return allowed, err
		}
	}

	for _, role := range roles {
		allowed, err := e.Enforce(role, object, action)
		if err != nil || allowed {
			return allowed, err
		}
	}

	if len(roles) == 0 && e.config.DefaultRole != "" {
		return e.Enforce(e.config.DefaultRole, object, action)
	}
	return false, nil
}

// AddRoleForUser grants user the role and drops the user's cached decisions.
func (e *Enforcer) AddRoleForUser(user, role string) (bool, error) {
	added, err := e.enforcer.AddGroupingPolicy(user, role)
	if err != nil {
		return false, fmt.Errorf("granting role %q: %w", role, err)
	}
	if e.cache != nil {
		e.cache.invalidateUser(user)
	}
	return added, nil
}

// DeleteRoleForUser revokes the role and drops the user's cached decisions.
func (e *Enforcer) DeleteRoleForUser(user, role string) (bool, error) {
	removed, err := e.enforcer.RemoveGroupingPolicy(user, role)
	if err != nil {
		return false, fmt.Errorf("revoking role %q: %w", role, err)
	}
	if e.cache != nil {
		e.cache.invalidateUser(user)
	}
	return removed, nil
}

// GetRolesForUser lists the user's directly assigned roles.
func (e *Enforcer) GetRolesForUser(user string) ([]string, error) {
	return e.enforcer.GetRolesForUser(user)
}

// ReloadPolicy re-reads a file-backed policy and clears the cache. A no-op
// for the embedded policy, which cannot change at runtime.
func (e *Enforcer) ReloadPolicy() error {
	if e.config.PolicyPath == "" {
		return nil
	}
	if err := e.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("reloading policy: %w", err)
	}
	if e.cache != nil {
		e.cache.clear()
	}
	return nil
}

// Close stops policy auto-reload and the cache janitor.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
	if e.cache != nil {
		e.cache.stop()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
