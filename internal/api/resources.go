package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rebuild-dev/rebuild-server/internal/config"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"github.com/rebuild-dev/rebuild-server/pkg/monitoring"
	"github.com/rebuild-dev/rebuild-server/pkg/query"
	"github.com/rebuild-dev/rebuild-server/pkg/storage"
)

const (
	listRouteName   = "list"
	createRouteName = "create"
	getRouteName    = "get"
	updateRouteName = "update"
	patchRouteName  = "patch"
	deleteRouteName = "delete"
)

// entityController handles the routes every resource kind shares.
type entityController[T any] struct {
	store  *storage.Store[T]
	schema query.Schema[storage.Entity[T]]
	// label is the singular display name used in error messages.
	label string
}

func (c *entityController[T]) routeName(action string) string {
	return c.store.Name() + "_" + action
}

// list handles the list request: filtering by q, sorting by _sort and _order,
// and returning the _start to _end window with the total count in the response header.
func (c *entityController[T]) list(writer http.ResponseWriter, request *http.Request) {
	params, err := query.ParseParams(request.URL.Query(), config.Config.Server.PageSize)
	if err != nil {
		writeClientError(request.Context(), writer, err, http.StatusBadRequest)
		return
	}
	result := query.Apply(c.store.List(), params, c.schema)
	if result.Items == nil {
		result.Items = []storage.Entity[T]{}
	}
	writer.Header().Set(TotalCountHeader, strconv.Itoa(result.Total))
	sendJSON(request.Context(), writer, result.Items, http.StatusOK)
}

func (c *entityController[T]) get(writer http.ResponseWriter, request *http.Request) {
	id, err := parseEntityID(writer, request)
	if err != nil {
		return
	}
	monitoring.AddEntityMonitoringData(request, c.store.Name(), id)

	entity, ok := c.store.Get(id)
	if !ok {
		writeNotFound(request.Context(), writer, c.label)
		return
	}
	sendJSON(request.Context(), writer, entity, http.StatusOK)
}

// update merges the partial into the stored entity. PUT and PATCH share this behavior.
func (c *entityController[T]) update(writer http.ResponseWriter, request *http.Request, partial map[string]any) {
	id, err := parseEntityID(writer, request)
	if err != nil {
		return
	}
	monitoring.AddEntityMonitoringData(request, c.store.Name(), id)

	entity, err := c.store.Update(id, partial)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeNotFound(request.Context(), writer, c.label)
	case errors.Is(err, storage.ErrInvalidPartial):
		writeClientError(request.Context(), writer, err, http.StatusBadRequest)
	case err != nil:
		log.WithContext(request.Context()).WithError(err).Warn("Could not update entity")
		writeInternalServerError(request.Context(), writer, err, dto.ErrorUnknown)
	default:
		sendJSON(request.Context(), writer, entity, http.StatusOK)
	}
}

func (c *entityController[T]) delete(writer http.ResponseWriter, request *http.Request) {
	id, err := parseEntityID(writer, request)
	if err != nil {
		return
	}
	monitoring.AddEntityMonitoringData(request, c.store.Name(), id)

	if !c.store.Delete(id) {
		writeNotFound(request.Context(), writer, c.label)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// configureRoutes registers the shared routes and returns the subrouter of the entity paths.
func (c *entityController[T]) configureRoutes(router *mux.Router, create, updateHandler http.HandlerFunc) {
	collection := "/" + c.store.Name()
	router.HandleFunc(collection, c.list).Methods(http.MethodGet).Name(c.routeName(listRouteName))
	router.HandleFunc(collection, create).Methods(http.MethodPost).Name(c.routeName(createRouteName))

	entityRouter := router.PathPrefix(collection + "/{" + IDKey + "}").Subrouter()
	entityRouter.HandleFunc("", c.get).Methods(http.MethodGet).Name(c.routeName(getRouteName))
	entityRouter.HandleFunc("", updateHandler).Methods(http.MethodPut).Name(c.routeName(updateRouteName))
	entityRouter.HandleFunc("", updateHandler).Methods(http.MethodPatch).Name(c.routeName(patchRouteName))
	entityRouter.HandleFunc("", c.delete).Methods(http.MethodDelete).Name(c.routeName(deleteRouteName))
}
