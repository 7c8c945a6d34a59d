package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rebuild-dev/rebuild-server/pkg/storage"
)

var ErrMissingField = errors.New("required field missing")

// User contains the fields of a user resource.
type User struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Role   string `json:"role"`
}

// Role contains the fields of a role resource.
type Role struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

// UserEntity is a stored user as returned by the API.
type UserEntity = storage.Entity[User]

// RoleEntity is a stored role as returned by the API.
type RoleEntity = storage.Entity[Role]

const (
	DefaultUserStatus = "active"
	DefaultUserRole   = "user"
)

// UserCreateRequest is the expected json structure of the request body for creating a user.
type UserCreateRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Role   string `json:"role"`
	// Password is accepted for compatibility with the login form but never stored.
	Password string `json:"password"`
}

// Validate checks the required fields.
func (r *UserCreateRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// User returns the fields of the user to create, applying the defaults.
func (r *UserCreateRequest) User() User {
	user := User{Name: r.Name, Email: r.Email, Status: r.Status, Role: r.Role}
	if user.Status == "" {
		user.Status = DefaultUserStatus
	}
	if user.Role == "" {
		user.Role = DefaultUserRole
	}
	return user
}

// UserUpdateRequest is the expected json structure of the request body for updating a user.
// Fields that are missing or null are left unchanged.
type UserUpdateRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Status   *string `json:"status"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

// Partial returns the changed fields keyed by their JSON names.
func (r *UserUpdateRequest) Partial() map[string]any {
	return map[string]any{
		"name":   r.Name,
		"email":  r.Email,
		"status": r.Status,
		"role":   r.Role,
	}
}

// RoleCreateRequest is the expected json structure of the request body for creating a role.
type RoleCreateRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

// Validate checks the required fields.
func (r *RoleCreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	return nil
}

// RoleUpdateRequest is the expected json structure of the request body for updating a role.
// Fields that are missing or null are left unchanged.
type RoleUpdateRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

// Partial returns the changed fields keyed by their JSON names.
func (r *RoleUpdateRequest) Partial() map[string]any {
	return map[string]any{
		"name":        r.Name,
		"description": r.Description,
		"permissions": r.Permissions,
	}
}

// LoginRequest is the expected json structure of the request body for the login route.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the response of a successful login.
type LoginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        UserEntity `json:"user"`
}

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// StatusResponse is the response of the root and health routes.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Docs    string `json:"docs,omitempty"`
}

// MessageResponse is a plain informational response.
type MessageResponse struct {
	Message string `json:"message"`
}

// Formatter mirrors the available Formatters of logrus for configuration purposes.
type Formatter string

const (
	FormatterText = "TextFormatter"
	FormatterJSON = "JSONFormatter"
)

// ContextKey is the type for keys in a request context that is used for passing data to the next handler.
type ContextKey string

// Keys to reference information (for logging or monitoring).
const (
	KeyResource = "resource"
	KeyEntityID = "entity_id"
)

// LoggedContextKeys defines which keys will be logged if a context is passed to logrus. See ContextHook.
var LoggedContextKeys = []ContextKey{KeyResource, KeyEntityID}

// ClientError is the response interface if the request is not valid.
type ClientError struct {
	Message string `json:"message"`
}

// InternalServerError is the response interface that is returned when an error occurs.
type InternalServerError struct {
	Message   string    `json:"message"`
	ErrorCode ErrorCode `json:"errorCode"`
}

// ErrorCode is the type for error codes returned to the frontend.
type ErrorCode string

const (
	ErrorUnknown ErrorCode = "UNKNOWN"
)
