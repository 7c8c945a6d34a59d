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

var ErrEmailAlreadyRegistered = errors.New("Email already registered")

// UserController serves the user routes.
type UserController struct {
	entityController[dto.User]
	registry *resource.Registry
	// createMutex serializes the uniqueness check with the insert.
	createMutex sync.Mutex
}

func NewUserController(registry *resource.Registry) *UserController {
	return &UserController{
		entityController: entityController[dto.User]{
			store:  registry.Users,
			schema: resource.UserSchema,
			label:  "User",
		},
		registry: registry,
	}
}

// ConfigureRoutes configures a given router with the user routes.
func (c *UserController) ConfigureRoutes(router *mux.Router) {
	c.configureRoutes(router, c.create, c.updateUser)
}

func (c *UserController) create(writer http.ResponseWriter, request *http.Request) {
	req := new(dto.UserCreateRequest)
	if err := parseJSONRequestBody(writer, request, req); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		writeClientError(request.Context(), writer, err, http.StatusUnprocessableEntity)
		return
	}

	c.createMutex.Lock()
	if _, exists := c.registry.FindUserByEmail(req.Email); exists {
		c.createMutex.Unlock()
		writeClientError(request.Context(), writer, ErrEmailAlreadyRegistered, http.StatusBadRequest)
		return
	}
	user := c.store.Create(req.User())
	c.createMutex.Unlock()

	monitoring.AddEntityMonitoringData(request, c.store.Name(), user.ID)
	log.WithContext(request.Context()).WithField("id", user.ID).Debug("Created user")
	sendJSON(request.Context(), writer, user, http.StatusCreated)
}

func (c *UserController) updateUser(writer http.ResponseWriter, request *http.Request) {
	req := new(dto.UserUpdateRequest)
	if err := parseJSONRequestBody(writer, request, req); err != nil {
		return
	}
	c.update(writer, request, req.Partial())
}
