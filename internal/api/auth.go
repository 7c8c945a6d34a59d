package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rebuild-dev/rebuild-server/internal/api/auth"
	"github.com/rebuild-dev/rebuild-server/internal/resource"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
)

const adminRole = "admin"

var (
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrNotAuthenticated   = errors.New("Not authenticated")
)

// AuthController serves the mock login flow. Any password is accepted.
type AuthController struct {
	registry *resource.Registry
	issuer   *auth.Issuer
}

// ConfigureRoutes configures a given router with the auth routes.
func (c *AuthController) ConfigureRoutes(router *mux.Router) {
	authRouter := router.PathPrefix(AuthPath).Subrouter()
	authRouter.HandleFunc(LoginPath, c.login).Methods(http.MethodPost).Name("auth_login")
	authRouter.HandleFunc(LogoutPath, c.logout).Methods(http.MethodPost).Name("auth_logout")
	authRouter.HandleFunc(MePath, c.me).Methods(http.MethodGet).Name("auth_me")
}

func (c *AuthController) login(writer http.ResponseWriter, request *http.Request) {
	req := new(dto.LoginRequest)
	if err := parseJSONRequestBody(writer, request, req); err != nil {
		return
	}
	user, ok := c.registry.FindUserByEmail(req.Email)
	if !ok {
		writeClientError(request.Context(), writer, ErrInvalidCredentials, http.StatusUnauthorized)
		return
	}

	token, err := c.issuer.Issue(user.ID, user.Fields.Email)
	if err != nil {
		log.WithContext(request.Context()).WithError(err).Warn("Could not issue access token")
		writeInternalServerError(request.Context(), writer, err, dto.ErrorUnknown)
		return
	}
	log.WithContext(request.Context()).WithField("user", user.ID).Debug("User logged in")
	sendJSON(request.Context(), writer, &dto.LoginResponse{
		AccessToken: token,
		TokenType:   dto.TokenTypeBearer,
		User:        user,
	}, http.StatusOK)
}

// logout has nothing to revoke as tokens are stateless.
func (c *AuthController) logout(writer http.ResponseWriter, request *http.Request) {
	sendJSON(request.Context(), writer, &dto.MessageResponse{Message: "Logged out successfully"}, http.StatusOK)
}

// me returns the user of the bearer token. Without a usable token it falls back to the first admin.
func (c *AuthController) me(writer http.ResponseWriter, request *http.Request) {
	if id, err := c.issuer.UserIDFromRequest(request); err == nil {
		if user, ok := c.registry.Users.Get(id); ok {
			sendJSON(request.Context(), writer, user, http.StatusOK)
			return
		}
	}

	user, ok := c.registry.FindUserByRole(adminRole)
	if !ok {
		writeClientError(request.Context(), writer, ErrNotAuthenticated, http.StatusUnauthorized)
		return
	}
	sendJSON(request.Context(), writer, user, http.StatusOK)
}
