package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rebuild-dev/rebuild-server/internal/resource"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"github.com/rebuild-dev/rebuild-server/pkg/monitoring"
)

var ErrRoleNameExists = errors.New("Role name already exists")

// RoleController serves the role routes.
type RoleController struct {
	entityController[dto.Role]
	registry    *resource.Registry
	createMutex sync.Mutex
}

func NewRoleController(registry *resource.Registry) *RoleController {
	return &RoleController{
		entityController: entityController[dto.Role]{
			store:  registry.Roles,
			schema: resource.RoleSchema,
			label:  "Role",
		},
		registry: registry,
	}
}

// ConfigureRoutes configures a given router with the role routes.
func (c *RoleController) ConfigureRoutes(router *mux.Router) {
	c.configureRoutes(router, c.create, c.updateRole)
}

// create stores a new role. Roles created without permissions get the default permissions of their name.
func (c *RoleController) create(writer http.ResponseWriter, request *http.Request) {
	req := new(dto.RoleCreateRequest)
	if err := parseJSONRequestBody(writer, request, req); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		writeClientError(request.Context(), writer, err, http.StatusUnprocessableEntity)
		return
	}
	fields := dto.Role{Name: req.Name, Description: req.Description, Permissions: req.Permissions}
	if fields.Permissions == nil {
		fields.Permissions = resource.DefaultPermissions(fields.Name)
	}

	c.createMutex.Lock()
	if _, exists := c.registry.FindRoleByName(req.Name); exists {
		c.createMutex.Unlock()
		writeClientError(request.Context(), writer, ErrRoleNameExists, http.StatusBadRequest)
		return
	}
	role := c.store.Create(fields)
	c.createMutex.Unlock()

	monitoring.AddEntityMonitoringData(request, c.store.Name(), role.ID)
	log.WithContext(request.Context()).WithField("id", role.ID).Debug("Created role")
	sendJSON(request.Context(), writer, role, http.StatusCreated)
}

func (c *RoleController) updateRole(writer http.ResponseWriter, request *http.Request) {
	req := new(dto.RoleUpdateRequest)
	if err := parseJSONRequestBody(writer, request, req); err != nil {
		return
	}
	c.update(writer, request, req.Partial())
}
