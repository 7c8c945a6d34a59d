package api

import (
	"net/http"

	"github.com/rebuild-dev/rebuild-server/pkg/dto"
)

const (
	StatusOK      = "ok"
	StatusHealthy = "healthy"
)

// Root tells the frontend that the mock API is running.
func Root(writer http.ResponseWriter, request *http.Request) {
	sendJSON(request.Context(), writer, &dto.StatusResponse{
		Status:  StatusOK,
		Message: "Rebuild Mock API is running",
		Docs:    "/docs",
	}, http.StatusOK)
}

// Health is the liveness check for container orchestration.
func Health(writer http.ResponseWriter, request *http.Request) {
	sendJSON(request.Context(), writer, &dto.StatusResponse{Status: StatusHealthy}, http.StatusOK)
}
