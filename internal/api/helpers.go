package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
)

const IDKey = "id"

var ErrInvalidID = errors.New("id must be a non-negative integer")

func writeInternalServerError(ctx context.Context, writer http.ResponseWriter, err error, errorCode dto.ErrorCode) {
	sendJSON(ctx, writer, &dto.InternalServerError{Message: err.Error(), ErrorCode: errorCode}, http.StatusInternalServerError)
}

func writeClientError(ctx context.Context, writer http.ResponseWriter, err error, status int) {
	sendJSON(ctx, writer, &dto.ClientError{Message: err.Error()}, status)
}

func writeNotFound(ctx context.Context, writer http.ResponseWriter, label string) {
	sendJSON(ctx, writer, &dto.ClientError{Message: label + " not found"}, http.StatusNotFound)
}

func sendJSON(ctx context.Context, writer http.ResponseWriter, content interface{}, httpStatusCode int) {
	response, err := json.Marshal(content)
	if err != nil {
		// cannot produce infinite recursive loop, since json.Marshal of dto.InternalServerError won't return an error
		writeInternalServerError(ctx, writer, err, dto.ErrorUnknown)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(httpStatusCode)
	if _, err = writer.Write(response); err != nil {
		log.WithError(err).WithContext(ctx).Error("Could not write JSON response")
	}
}

func parseJSONRequestBody(writer http.ResponseWriter, request *http.Request, structure interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(structure); err != nil {
		writeClientError(request.Context(), writer, err, http.StatusBadRequest)
		return fmt.Errorf("error parsing JSON request body: %w", err)
	}
	return nil
}

// parseEntityID reads the id path parameter. It writes a client error if the id is malformed.
func parseEntityID(writer http.ResponseWriter, request *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(request)[IDKey])
	if err != nil || id < 0 {
		writeClientError(request.Context(), writer, ErrInvalidID, http.StatusBadRequest)
		return 0, ErrInvalidID
	}
	return id, nil
}
