// Package resource wires the generic store and query pipeline to the concrete resource kinds.
package resource

import (
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"github.com/rebuild-dev/rebuild-server/pkg/logging"
	"github.com/rebuild-dev/rebuild-server/pkg/query"
	"github.com/rebuild-dev/rebuild-server/pkg/storage"
)

const (
	UsersResource = "users"
	RolesResource = "roles"
)

var log = logging.GetLogger("resource")

// Registry holds one store per resource kind.
type Registry struct {
	Users *storage.Store[dto.User]
	Roles *storage.Store[dto.Role]
}

// NewRegistry creates empty stores. Every observer is notified about writes to any of them.
func NewRegistry(observers ...storage.Observer) *Registry {
	return &Registry{
		Users: storage.NewStore[dto.User](UsersResource, observers...),
		Roles: storage.NewStore[dto.Role](RolesResource, observers...),
	}
}

// UserSchema lists the fields of users available for sorting and filtering.
var UserSchema = schemaFor(map[string]func(dto.User) any{
	"name":   func(u dto.User) any { return u.Name },
	"email":  func(u dto.User) any { return u.Email },
	"status": func(u dto.User) any { return u.Status },
	"role":   func(u dto.User) any { return u.Role },
}, func(u dto.User) string { return u.Name }, func(u dto.User) string { return u.Email })

// RoleSchema lists the fields of roles available for sorting and filtering.
var RoleSchema = schemaFor(map[string]func(dto.Role) any{
	"name": func(r dto.Role) any { return r.Name },
	"description": func(r dto.Role) any {
		if r.Description == nil {
			return ""
		}
		return *r.Description
	},
	"permissions": func(r dto.Role) any { return r.Permissions },
}, func(r dto.Role) string { return r.Name })

// schemaFor adds the envelope fields to the kind-specific accessors.
func schemaFor[T any](fields map[string]func(T) any, searchable ...func(T) string) query.Schema[storage.Entity[T]] {
	schema := query.Schema[storage.Entity[T]]{
		Fields: map[string]query.Accessor[storage.Entity[T]]{
			storage.KeyID:        func(e storage.Entity[T]) any { return e.ID },
			storage.KeyCreatedAt: func(e storage.Entity[T]) any { return e.CreatedAt },
			storage.KeyUpdatedAt: func(e storage.Entity[T]) any { return e.UpdatedAt },
		},
	}
	for name, accessor := range fields {
		accessor := accessor
		schema.Fields[name] = func(e storage.Entity[T]) any { return accessor(e.Fields) }
	}
	for _, field := range searchable {
		field := field
		schema.Searchable = append(schema.Searchable, func(e storage.Entity[T]) string { return field(e.Fields) })
	}
	return schema
}

// Permissions granted to roles without an explicit permission set.
const (
	PermissionRead   = "read"
	PermissionWrite  = "write"
	PermissionDelete = "delete"
)

// DefaultPermissions returns the permission set of the built-in roles: admin may read, write and delete,
// editor may read and write, every other role may only read.
func DefaultPermissions(roleName string) []string {
	switch roleName {
	case "admin":
		return []string{PermissionRead, PermissionWrite, PermissionDelete}
	case "editor":
		return []string{PermissionRead, PermissionWrite}
	default:
		return []string{PermissionRead}
	}
}

// FindUserByEmail returns the first user with exactly the passed email.
func (r *Registry) FindUserByEmail(email string) (dto.UserEntity, bool) {
	for _, user := range r.Users.List() {
		if user.Fields.Email == email {
			return user, true
		}
	}
	return dto.UserEntity{}, false
}

// FindUserByRole returns the first user in insertion order that has the passed role.
func (r *Registry) FindUserByRole(role string) (dto.UserEntity, bool) {
	for _, user := range r.Users.List() {
		if user.Fields.Role == role {
			return user, true
		}
	}
	return dto.UserEntity{}, false
}

// FindRoleByName returns the role with exactly the passed name.
func (r *Registry) FindRoleByName(name string) (dto.RoleEntity, bool) {
	for _, role := range r.Roles.List() {
		if role.Fields.Name == name {
			return role, true
		}
	}
	return dto.RoleEntity{}, false
}
