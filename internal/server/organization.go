package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	organizationdomain "github.com/orgstream/orgstream/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snap, err := s.organizationSvc.Create(c.Request.Context(), organizationdomain.CreateOrganizationRequest{
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, snap)
}

// ListOrganizations serves from the read model; documents trail the event log
// by at most the relay plus denormalizer intervals.
func (s *Server) ListOrganizations(c *gin.Context) {
	limit, offset := paginationParams(c)
	docs, err := s.docs.List(c.Request.Context(), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": docs})
}

func (s *Server) GetOrganization(c *gin.Context) {
	doc, err := s.docs.Get(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// GetOrganizationAggregate replays the event log instead of reading the
// document, so the response is always current.
func (s *Server) GetOrganizationAggregate(c *gin.Context) {
	snap, err := s.organizationSvc.Get(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	if err := s.organizationSvc.Delete(c.Request.Context(), c.Param("org_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type addRoleRequest struct {
	Name        string                          `json:"name"`
	Permissions []organizationdomain.Permission `json:"permissions"`
}

func (s *Server) AddRole(c *gin.Context) {
	var req addRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	role, err := s.organizationSvc.AddRole(c.Request.Context(), organizationdomain.AddRoleRequest{
		OrgID:       c.Param("org_id"),
		Name:        strings.TrimSpace(req.Name),
		Permissions: req.Permissions,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, role)
}

func (s *Server) RemoveRole(c *gin.Context) {
	err := s.organizationSvc.RemoveRole(c.Request.Context(), c.Param("org_id"), c.Param("role_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type addUserRequest struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

func (s *Server) AddUser(c *gin.Context) {
	var req addUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err := s.organizationSvc.AddUser(c.Request.Context(), organizationdomain.AddUserRequest{
		OrgID:  c.Param("org_id"),
		UserID: strings.TrimSpace(req.UserID),
		Roles:  req.Roles,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveUser(c *gin.Context) {
	err := s.organizationSvc.RemoveUser(c.Request.Context(), c.Param("org_id"), c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type userRolesRequest struct {
	Roles []string `json:"roles"`
}

func (s *Server) AssignRoles(c *gin.Context) {
	var req userRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err := s.organizationSvc.AssignRoles(c.Request.Context(), organizationdomain.UserRolesRequest{
		OrgID:  c.Param("org_id"),
		UserID: c.Param("user_id"),
		Roles:  req.Roles,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveRoles(c *gin.Context) {
	var req userRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err := s.organizationSvc.RemoveRoles(c.Request.Context(), organizationdomain.UserRolesRequest{
		OrgID:  c.Param("org_id"),
		UserID: c.Param("user_id"),
		Roles:  req.Roles,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func paginationParams(c *gin.Context) (limit, offset int) {
	limit = 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
