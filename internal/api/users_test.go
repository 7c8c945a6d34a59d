package api

import (
	"net/http"
	"strconv"

	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"github.com/rebuild-dev/rebuild-server/tests"
)

func (s *APITestSuite) listUsers(rawQuery string) ([]dto.UserEntity, *http.Response) {
	recorder := s.request(http.MethodGet, UsersPath+"?"+rawQuery, nil)
	s.Require().Equal(http.StatusOK, recorder.Code)
	var users []dto.UserEntity
	s.decode(recorder, &users)
	return users, recorder.Result()
}

func userNames(users []dto.UserEntity) (names []string) {
	for _, user := range users {
		names = append(names, user.Fields.Name)
	}
	return names
}

func (s *APITestSuite) TestListUsers() {
	s.Run("default window", func() {
		users, response := s.listUsers("")
		s.Equal("5", response.Header.Get(TotalCountHeader))
		s.Equal([]string{"Admin User", "John Doe", "Jane Smith", "Bob Wilson", "Alice Brown"}, userNames(users))
	})

	s.Run("pagination", func() {
		users, response := s.listUsers("_start=3&_end=10")
		s.Equal("5", response.Header.Get(TotalCountHeader))
		s.Equal([]string{"Bob Wilson", "Alice Brown"}, userNames(users))
	})

	s.Run("search is case insensitive", func() {
		users, response := s.listUsers("q=DOE")
		s.Equal("1", response.Header.Get(TotalCountHeader))
		s.Equal([]string{"John Doe"}, userNames(users))
	})

	s.Run("sort descending", func() {
		users, _ := s.listUsers("_sort=name&_order=desc&_end=2")
		s.Equal([]string{"John Doe", "Jane Smith"}, userNames(users))
	})

	s.Run("empty result is an empty array", func() {
		recorder := s.request(http.MethodGet, UsersPath+"?q=nobody", nil)
		s.Equal(http.StatusOK, recorder.Code)
		s.Equal("0", recorder.Header().Get(TotalCountHeader))
		s.JSONEq(`[]`, recorder.Body.String())
	})

	s.Run("invalid parameter", func() {
		recorder := s.request(http.MethodGet, UsersPath+"?_start=-1", nil)
		s.Equal(http.StatusBadRequest, recorder.Code)
		recorder = s.request(http.MethodGet, UsersPath+"?_order=sideways", nil)
		s.Equal(http.StatusBadRequest, recorder.Code)
	})
}

func (s *APITestSuite) TestGetUser() {
	s.Run("existing", func() {
		recorder := s.request(http.MethodGet, UsersPath+"/3", nil)
		s.Require().Equal(http.StatusOK, recorder.Code)
		user := new(dto.UserEntity)
		s.decode(recorder, user)
		s.Equal(3, user.ID)
		s.Equal("jane@example.com", user.Fields.Email)
		s.False(user.CreatedAt.IsZero())
	})

	s.Run("response is flat", func() {
		recorder := s.request(http.MethodGet, UsersPath+"/1", nil)
		var body map[string]interface{}
		s.decode(recorder, &body)
		s.Contains(body, "id")
		s.Contains(body, "created_at")
		s.Contains(body, "updated_at")
		s.Equal("Admin User", body["name"])
		s.NotContains(body, "password")
	})

	s.Run("unknown", func() {
		recorder := s.request(http.MethodGet, UsersPath+"/"+strconv.Itoa(tests.NonExistingIntegerID), nil)
		s.Equal(http.StatusNotFound, recorder.Code)
		s.Equal("User not found", s.errorMessage(recorder))
	})

	s.Run("malformed id", func() {
		recorder := s.request(http.MethodGet, UsersPath+"/abc", nil)
		s.Equal(http.StatusBadRequest, recorder.Code)
	})
}

func (s *APITestSuite) TestCreateUser() {
	s.Run("applies defaults and drops the password", func() {
		recorder := s.request(http.MethodPost, UsersPath, map[string]string{
			"name": "Grace Hopper", "email": "grace@example.com", "password": "secret",
		})
		s.Require().Equal(http.StatusCreated, recorder.Code)
		s.NotContains(recorder.Body.String(), "secret")

		user := new(dto.UserEntity)
		s.decode(recorder, user)
		s.Equal(6, user.ID)
		s.Equal(dto.DefaultUserStatus, user.Fields.Status)
		s.Equal(dto.DefaultUserRole, user.Fields.Role)
		s.Equal(6, s.registry.Users.Count())
	})

	s.Run("duplicate email", func() {
		recorder := s.request(http.MethodPost, UsersPath, map[string]string{"name": "Jane", "email": "jane@example.com"})
		s.Equal(http.StatusBadRequest, recorder.Code)
		s.Equal(ErrEmailAlreadyRegistered.Error(), s.errorMessage(recorder))
	})

	s.Run("missing field", func() {
		recorder := s.request(http.MethodPost, UsersPath, map[string]string{"name": "Nameless"})
		s.Equal(http.StatusUnprocessableEntity, recorder.Code)
		s.Contains(s.errorMessage(recorder), "email")
	})

	s.Run("malformed body", func() {
		recorder := s.request(http.MethodPost, UsersPath, "not an object")
		s.Equal(http.StatusBadRequest, recorder.Code)
	})
}

func (s *APITestSuite) TestUpdateUser() {
	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		s.Run(method, func() {
			before, ok := s.registry.Users.Get(2)
			s.Require().True(ok)

			recorder := s.request(method, UsersPath+"/2", map[string]interface{}{"status": "inactive", "name": nil})
			s.Require().Equal(http.StatusOK, recorder.Code)
			user := new(dto.UserEntity)
			s.decode(recorder, user)
			s.Equal(2, user.ID)
			s.Equal("inactive", user.Fields.Status)
			s.Equal(before.Fields.Name, user.Fields.Name)
			s.Equal(before.Fields.Email, user.Fields.Email)
			s.True(before.CreatedAt.Equal(user.CreatedAt))
			s.False(user.UpdatedAt.Before(before.UpdatedAt))
		})
	}

	s.Run("unknown", func() {
		recorder := s.request(http.MethodPatch, UsersPath+"/"+strconv.Itoa(tests.NonExistingIntegerID), map[string]string{"status": "inactive"})
		s.Equal(http.StatusNotFound, recorder.Code)
		s.Equal("User not found", s.errorMessage(recorder))
	})

	s.Run("wrong type", func() {
		recorder := s.request(http.MethodPatch, UsersPath+"/2", map[string]int{"name": 1})
		s.Equal(http.StatusBadRequest, recorder.Code)
	})
}

func (s *APITestSuite) TestDeleteUser() {
	recorder := s.request(http.MethodDelete, UsersPath+"/4", nil)
	s.Equal(http.StatusNoContent, recorder.Code)
	s.Empty(recorder.Body.String())

	recorder = s.request(http.MethodDelete, UsersPath+"/4", nil)
	s.Equal(http.StatusNotFound, recorder.Code)

	users, response := s.listUsers("")
	s.Equal("4", response.Header.Get(TotalCountHeader))
	for _, user := range users {
		s.NotEqual(4, user.ID, strconv.Itoa(user.ID))
	}

	recorder = s.request(http.MethodPost, UsersPath, map[string]string{"name": "Bob", "email": "bob2@example.com"})
	s.Require().Equal(http.StatusCreated, recorder.Code)
	user := new(dto.UserEntity)
	s.decode(recorder, user)
	s.Equal(6, user.ID)
}
