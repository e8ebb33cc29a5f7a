package handler

import (
	"net/http"

	"crm-backend/internal/middleware"
	"crm-backend/internal/model"
	"crm-backend/internal/service"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	base
	projectService service.ProjectService
	auth           *middleware.Authenticator
}

func NewProjectHandler(projectService service.ProjectService, auth *middleware.Authenticator, opts Options) *ProjectHandler {
	return &ProjectHandler{base: newBase(opts), projectService: projectService, auth: auth}
}

func (h *ProjectHandler) RegisterRoutes(router *gin.RouterGroup) {
	projects := router.Group("/api/projects")
	{
		projects.GET("/:id/detail", h.auth.RequirePermission(model.PermProjectsRead), h.GetProjectDetail)
		projects.PUT("/:id/status", h.auth.RequirePermission(model.PermProjectsWrite), h.UpdateProjectStatus)
	}
	router.GET("/api/clients/:id/detail", h.auth.RequirePermission(model.PermProjectsRead), h.GetClientDetail)
}

// GetProjectDetail returns a project with its client, invoices, payments, campaigns and leads
// @Summary      Get project detail
// @Description  Client-role callers may only read projects they own
// @Tags         projects
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Project ID"
// @Success      200  {object}  response.Response{data=service.ProjectDetailResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/projects/{id}/detail [get]
func (h *ProjectHandler) GetProjectDetail(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	detail, err := h.projectService.GetProjectDetail(c.Request.Context(), p.CompanyID, viewerOf(p), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("OK", detail))
}

// GetClientDetail returns a client with every project and finance record billed to it
// @Summary      Get client detail
// @Tags         projects
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.ClientDetailResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id}/detail [get]
func (h *ProjectHandler) GetClientDetail(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	detail, err := h.projectService.GetClientDetail(c.Request.Context(), p.CompanyID, viewerOf(p), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("OK", detail))
}

// UpdateProjectStatus moves a project through its lifecycle
// @Summary      Update project status
// @Tags         projects
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                              true  "Project ID"
// @Param        payload  body      service.UpdateProjectStatusRequest  true  "Status Payload"
// @Success      200      {object}  response.Response{data=service.ProjectResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/projects/{id}/status [put]
func (h *ProjectHandler) UpdateProjectStatus(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req service.UpdateProjectStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	project, err := h.projectService.UpdateProjectStatus(c.Request.Context(), p.CompanyID, p.UserID, c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("Project status updated", project))
}
