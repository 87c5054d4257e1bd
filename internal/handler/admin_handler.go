package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/identity-service/internal/autherr"
	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/internal/dto"
	"github.com/stagepass/identity-service/internal/service"
)

// AdminHandler exposes account administration. All routes sit behind
// AuthMiddleware and RequireAdmin.
type AdminHandler struct {
	authService service.AuthService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(authService service.AuthService) *AdminHandler {
	return &AdminHandler{
		authService: authService,
	}
}

// GetUser returns a user by ID
// @Summary Get user by ID
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} dto.UserResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id} [get]
func (h *AdminHandler) GetUser(c *gin.Context) {
	user, err := h.authService.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateRole changes a user's role
// @Summary Update user role
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body dto.UpdateRoleRequest true "Role update"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id}/role [put]
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	var req dto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	role := domain.Role(req.Role)
	if !role.Valid() {
		writeError(c, autherr.New(autherr.KindValidation, "unknown role"))
		return
	}

	if err := h.authService.UpdateUserRole(c.Request.Context(), c.Param("id"), role); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Role updated successfully"})
}

// DeleteUser removes an account
// @Summary Delete user
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.authService.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "User deleted successfully"})
}
