package api

import (
	"net/http"
	"net/http/httptest"

	"github.com/rebuild-dev/rebuild-server/internal/api/auth"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
)

func (s *APITestSuite) login(email string) *httptest.ResponseRecorder {
	return s.request(http.MethodPost, AuthPath+LoginPath, &dto.LoginRequest{Email: email, Password: "anything"})
}

func (s *APITestSuite) me(token string) *httptest.ResponseRecorder {
	request, err := http.NewRequest(http.MethodGet, AuthPath+MePath, http.NoBody)
	s.Require().NoError(err)
	if token != "" {
		request.Header.Set(auth.AuthorizationHeader, "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, request)
	return recorder
}

func (s *APITestSuite) TestLogin() {
	s.Run("known email with any password", func() {
		recorder := s.login("jane@example.com")
		s.Require().Equal(http.StatusOK, recorder.Code)
		response := new(dto.LoginResponse)
		s.decode(recorder, response)
		s.Equal(dto.TokenTypeBearer, response.TokenType)
		s.Equal(3, response.User.ID)

		claims, err := s.issuer.Parse(response.AccessToken)
		s.Require().NoError(err)
		s.Equal("jane@example.com", claims.Email)
	})

	s.Run("unknown email", func() {
		recorder := s.login("nobody@example.com")
		s.Equal(http.StatusUnauthorized, recorder.Code)
		s.Equal(ErrInvalidCredentials.Error(), s.errorMessage(recorder))
	})
}

func (s *APITestSuite) TestLogout() {
	recorder := s.request(http.MethodPost, AuthPath+LogoutPath, nil)
	s.Equal(http.StatusOK, recorder.Code)
	s.JSONEq(`{"message": "Logged out successfully"}`, recorder.Body.String())
}

func (s *APITestSuite) TestMe() {
	s.Run("user of the token", func() {
		response := new(dto.LoginResponse)
		s.decode(s.login("alice@example.com"), response)

		recorder := s.me(response.AccessToken)
		s.Require().Equal(http.StatusOK, recorder.Code)
		user := new(dto.UserEntity)
		s.decode(recorder, user)
		s.Equal("Alice Brown", user.Fields.Name)
	})

	s.Run("first admin without token", func() {
		recorder := s.me("")
		s.Require().Equal(http.StatusOK, recorder.Code)
		user := new(dto.UserEntity)
		s.decode(recorder, user)
		s.Equal("admin@example.com", user.Fields.Email)
	})

	s.Run("first admin with invalid token", func() {
		recorder := s.me("mock_token_5")
		s.Require().Equal(http.StatusOK, recorder.Code)
		user := new(dto.UserEntity)
		s.decode(recorder, user)
		s.Equal(1, user.ID)
	})

	s.Run("first admin when the token user was deleted", func() {
		response := new(dto.LoginResponse)
		s.decode(s.login("bob@example.com"), response)
		s.Require().True(s.registry.Users.Delete(response.User.ID))

		user := new(dto.UserEntity)
		s.decode(s.me(response.AccessToken), user)
		s.Equal(1, user.ID)
	})

	s.Run("no admin", func() {
		s.Require().True(s.registry.Users.Delete(1))
		recorder := s.me("")
		s.Equal(http.StatusUnauthorized, recorder.Code)
		s.Equal(ErrNotAuthenticated.Error(), s.errorMessage(recorder))
	})
}
