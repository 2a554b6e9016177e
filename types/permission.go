package types

import (
	"fmt"
	"strings"
)

// Permission is a capability tag from the closed permission catalog.
// Values outside the catalog are never granted.
type Permission string

const (
	// PermSelfModify lets a principal modify its own profile. Every user
	// holds it implicitly; tokens must carry it explicitly.
	PermSelfModify Permission = "self:modify"
	// PermUserCreate lets a principal create accounts. Only superadmin
	// implies it.
	PermUserCreate Permission = "user:create"
	PermUserModify Permission = "user:modify"
	// PermUserDelete lets a principal delete accounts. Only superadmin
	// implies it.
	PermUserDelete Permission = "user:delete"
	PermUserView   Permission = "user:view"
	// PermTokenDelete lets a principal delete its own tokens. Every user
	// holds it implicitly.
	PermTokenDelete    Permission = "token:delete"
	PermModCreate      Permission = "mod:create"
	PermModModify      Permission = "mod:modify"
	PermModDelete      Permission = "mod:delete"
	PermRedirectCreate Permission = "redirect:create"
	PermRedirectModify Permission = "redirect:modify"
	PermRedirectDelete Permission = "redirect:delete"

	// PermAdmin implies every permission except the ones in adminExclusions.
	PermAdmin Permission = "admin"
	// PermSuperadmin implies every permission.
	PermSuperadmin Permission = "superadmin"
)

var permissionCatalog = []Permission{
	PermSelfModify,
	PermUserCreate,
	PermUserModify,
	PermUserDelete,
	PermUserView,
	PermTokenDelete,
	PermModCreate,
	PermModModify,
	PermModDelete,
	PermRedirectCreate,
	PermRedirectModify,
	PermRedirectDelete,
	PermAdmin,
	PermSuperadmin,
}

var validPermissions = func() map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(permissionCatalog))
	for _, p := range permissionCatalog {
		set[p] = struct{}{}
	}
	return set
}()

// implicitPermissions are held by every user regardless of its permission list.
var implicitPermissions = map[Permission]struct{}{
	PermSelfModify:  {},
	PermTokenDelete: {},
}

// adminExclusions are the only catalog entries admin does not imply.
var adminExclusions = map[Permission]struct{}{
	PermUserCreate: {},
	PermUserDelete: {},
}

// Grantor is anything that can be asked whether it holds a permission.
type Grantor interface {
	HasPermission(p Permission) bool
}

// AllPermissions returns a copy of the permission catalog in declaration order.
func AllPermissions() []Permission {
	out := make([]Permission, len(permissionCatalog))
	copy(out, permissionCatalog)
	return out
}

// Valid reports whether p is part of the catalog.
func (p Permission) Valid() bool {
	_, ok := validPermissions[p]
	return ok
}

// Wildcard reports whether p is admin or superadmin.
func (p Permission) Wildcard() bool {
	return p == PermAdmin || p == PermSuperadmin
}

func (p Permission) String() string {
	return string(p)
}

// IsImplicit reports whether every user holds p without it being listed.
func IsImplicit(p Permission) bool {
	_, ok := implicitPermissions[p]
	return ok
}

// AdminExcludes reports whether p is withheld from admin.
func AdminExcludes(p Permission) bool {
	_, ok := adminExclusions[p]
	return ok
}

// ParsePermission converts raw into a catalog permission.
func ParsePermission(raw string) (Permission, error) {
	p := Permission(strings.TrimSpace(raw))
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", raw)
	}
	return p, nil
}

// ParsePermissions converts raw values and silently drops anything outside
// the catalog along with duplicates.
func ParsePermissions(raw []string) []Permission {
	out := make([]Permission, 0, len(raw))
	seen := make(map[Permission]struct{}, len(raw))
	for _, value := range raw {
		p, err := ParsePermission(value)
		if err != nil {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// PermissionStrings converts perms into plain strings for storage.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// grantsFromList applies the wildcard rules to an explicit permission list.
// admin holds every tag outside the admin exclusions, superadmin included;
// CanGrant is what keeps an admin from handing superadmin out.
func grantsFromList(perms []Permission, p Permission) bool {
	admin := false
	for _, held := range perms {
		switch held {
		case PermSuperadmin:
			return true
		case PermAdmin:
			admin = true
		case p:
			return true
		}
	}
	return admin && !AdminExcludes(p)
}

// CanGrant reports whether g may hand out p to someone else. A wildcard can
// only be granted by a holder of everything the wildcard implies.
func CanGrant(g Grantor, p Permission) bool {
	if !p.Valid() || !g.HasPermission(p) {
		return false
	}
	if !p.Wildcard() {
		return true
	}
	for _, implied := range permissionCatalog {
		if implied.Wildcard() {
			continue
		}
		if p == PermAdmin && AdminExcludes(implied) {
			continue
		}
		if !g.HasPermission(implied) {
			return false
		}
	}
	return true
}

// FilterGrantable keeps the requested values that g may grant, in request
// order and without duplicates.
func FilterGrantable(g Grantor, requested []string) []Permission {
	parsed := ParsePermissions(requested)
	out := make([]Permission, 0, len(parsed))
	for _, p := range parsed {
		if CanGrant(g, p) {
			out = append(out, p)
		}
	}
	return out
}
