package api

import (
	"net/http"
	"strconv"

	"github.com/rebuild-dev/rebuild-server/internal/resource"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"github.com/rebuild-dev/rebuild-server/tests"
)

func (s *APITestSuite) listRoleNames() []string {
	recorder := s.request(http.MethodGet, RolesPath, nil)
	s.Require().Equal(http.StatusOK, recorder.Code)
	var roles []dto.RoleEntity
	s.decode(recorder, &roles)
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Fields.Name)
	}
	return names
}

func (s *APITestSuite) TestRolesLifecycle() {
	s.Equal([]string{"admin", "editor", "viewer"}, s.listRoleNames())

	editor, ok := s.registry.FindRoleByName("editor")
	s.Require().True(ok)
	recorder := s.request(http.MethodDelete, RolesPath+"/"+strconv.Itoa(editor.ID), nil)
	s.Require().Equal(http.StatusNoContent, recorder.Code)

	recorder = s.request(http.MethodPost, RolesPath, map[string]string{"name": "ops"})
	s.Require().Equal(http.StatusCreated, recorder.Code)
	ops := new(dto.RoleEntity)
	s.decode(recorder, ops)
	s.Equal(4, ops.ID)
	s.Equal(resource.DefaultPermissions("ops"), ops.Fields.Permissions)
	s.Nil(ops.Fields.Description)

	s.Equal([]string{"admin", "viewer", "ops"}, s.listRoleNames())
}

func (s *APITestSuite) TestCreateRole() {
	s.Run("keeps explicit permissions", func() {
		recorder := s.request(http.MethodPost, RolesPath, map[string]interface{}{
			"name":        "auditor",
			"description": "Reads audit logs",
			"permissions": []string{"read", "audit"},
		})
		s.Require().Equal(http.StatusCreated, recorder.Code)
		role := new(dto.RoleEntity)
		s.decode(recorder, role)
		s.Equal([]string{"read", "audit"}, role.Fields.Permissions)
		s.Require().NotNil(role.Fields.Description)
		s.Equal("Reads audit logs", *role.Fields.Description)
	})

	s.Run("duplicate name", func() {
		recorder := s.request(http.MethodPost, RolesPath, map[string]string{"name": "admin"})
		s.Equal(http.StatusBadRequest, recorder.Code)
		s.Equal(ErrRoleNameExists.Error(), s.errorMessage(recorder))
	})

	s.Run("missing name", func() {
		recorder := s.request(http.MethodPost, RolesPath, map[string]string{"description": "nameless"})
		s.Equal(http.StatusUnprocessableEntity, recorder.Code)
	})
}

func (s *APITestSuite) TestUpdateRole() {
	s.Run("permissions are replaced", func() {
		recorder := s.request(http.MethodPatch, RolesPath+"/1", map[string]interface{}{"permissions": []string{"read"}})
		s.Require().Equal(http.StatusOK, recorder.Code)
		role := new(dto.RoleEntity)
		s.decode(recorder, role)
		s.Equal([]string{"read"}, role.Fields.Permissions)
		s.Equal("admin", role.Fields.Name)
		s.Require().NotNil(role.Fields.Description)
	})

	s.Run("missing fields are unchanged", func() {
		recorder := s.request(http.MethodPut, RolesPath+"/2", map[string]string{"description": "Edits content"})
		s.Require().Equal(http.StatusOK, recorder.Code)
		role := new(dto.RoleEntity)
		s.decode(recorder, role)
		s.Equal("editor", role.Fields.Name)
		s.Equal(resource.DefaultPermissions("editor"), role.Fields.Permissions)
		s.Equal("Edits content", *role.Fields.Description)
	})

	s.Run("unknown", func() {
		recorder := s.request(http.MethodPut, RolesPath+"/"+strconv.Itoa(tests.NonExistingIntegerID), map[string]string{"name": "ghost"})
		s.Equal(http.StatusNotFound, recorder.Code)
		s.Equal("Role not found", s.errorMessage(recorder))
	})
}

func (s *APITestSuite) TestListRolesQuery() {
	recorder := s.request(http.MethodGet, RolesPath+"?q=view", nil)
	s.Require().Equal(http.StatusOK, recorder.Code)
	s.Equal("1", recorder.Header().Get(TotalCountHeader))

	recorder = s.request(http.MethodGet, RolesPath+"?_sort=name&_order=DESC&_start=1&_end=2", nil)
	s.Require().Equal(http.StatusOK, recorder.Code)
	s.Equal("3", recorder.Header().Get(TotalCountHeader))
	var roles []dto.RoleEntity
	s.decode(recorder, &roles)
	s.Require().Len(roles, 1)
	s.Equal("editor", roles[0].Fields.Name)
}
