package authz

import (
	"errors"
	"fmt"
	"time"

	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/pkg/logger"
	"gorm.io/gorm"
)

// Actor is the authenticated identity attached to every request by the auth
// middleware. The resolver trusts it and performs no credential verification.
type Actor struct {
	ID       uint
	TenantID uint
	IsActive bool
}

// Decision is the result of a project access check.
type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// defaultCacheTTL bounds how long a revoked role may still grant access.
const defaultCacheTTL = time.Minute

// Resolver answers authorization questions by combining tenant-wide role
// grants with per-project membership roles. It performs no locking and
// tolerates reads that are stale within the cache TTL.
type Resolver struct {
	db    *gorm.DB
	cache *permissionCache
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{
		db:    db,
		cache: newPermissionCache(defaultCacheTTL),
	}
}

// HasTenantPermission reports whether key is in the union of permission sets
// across all roles assigned to the actor. There is no error path: an unknown
// actor, an inactive actor, a revoked role, or a storage failure all yield
// false (fail closed).
func (r *Resolver) HasTenantPermission(actor Actor, key string) bool {
	if actor.ID == 0 || !actor.IsActive {
		return false
	}

	perms, err := r.permissionSet(actor)
	if err != nil {
		l := logger.With("authz")
		l.Error().Err(err).
			Uint("user_id", actor.ID).
			Str("permission", key).
			Msg("permission lookup failed, denying")
		return false
	}
	return perms[key]
}

// permissionSet returns the actor's effective permission keys, served from the
// read-through cache when fresh.
func (r *Resolver) permissionSet(actor Actor) (map[string]bool, error) {
	if cached, ok := r.cache.get(actor.ID); ok {
		return cached, nil
	}

	var keys []string
	err := r.db.Table("permissions").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN roles ON roles.id = role_permissions.role_id").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", actor.ID).
		Where("roles.tenant_id = ?", actor.TenantID).
		Where("roles.deleted_at IS NULL").
		Pluck("permissions.key", &keys).Error
	if err != nil {
		return nil, err
	}

	perms := make(map[string]bool, len(keys))
	for _, k := range keys {
		perms[k] = true
	}
	r.cache.put(actor.ID, perms)
	return perms, nil
}

// Invalidate drops the cached permission set for one user. Called whenever a
// role is assigned to or revoked from that user.
func (r *Resolver) Invalidate(userID uint) {
	r.cache.invalidate(userID)
}

// InvalidateAll drops every cached permission set. Called when a role's
// permission bundle itself changes.
func (r *Resolver) InvalidateAll() {
	r.cache.invalidateAll()
}

// CheckProjectAccess decides whether the actor may act on a project.
//
// Membership is mandatory: without a ProjectMember row the answer is Deny,
// for every actor including tenant admins. For members, an "owner" membership
// or admin-equivalent tenant permission bypasses the required-role check
// entirely. All other roles must equal minimumRole exactly — the labels are
// not ranked, so a "member" does not satisfy a "pm" requirement. An empty
// minimumRole means any membership suffices.
func (r *Resolver) CheckProjectAccess(actor Actor, projectID uint, minimumRole string) Decision {
	if actor.ID == 0 || !actor.IsActive {
		return Deny("actor is not active")
	}

	var member models.ProjectMember
	err := r.db.Where("project_id = ? AND user_id = ?", projectID, actor.ID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Deny("not a project member")
		}
		l := logger.With("authz")
		l.Error().Err(err).
			Uint("user_id", actor.ID).
			Uint("project_id", projectID).
			Msg("membership lookup failed, denying")
		return Deny("membership lookup failed")
	}

	if member.Role == models.ProjectRoleOwner {
		return Allow()
	}
	if r.HasTenantPermission(actor, PermAdminAccess) {
		return Allow()
	}
	if minimumRole == "" {
		return Allow()
	}
	if member.Role == minimumRole {
		return Allow()
	}
	return Deny(fmt.Sprintf("requires %s role on this project", minimumRole))
}
