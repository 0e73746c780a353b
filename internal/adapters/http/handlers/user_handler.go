package handlers

import (
	"errors"
	"strconv"

	"mindfeed-auth/internal/adapters/http/middleware"
	"mindfeed-auth/internal/core/domain"
	"mindfeed-auth/internal/core/services"
	"mindfeed-auth/internal/pkg/pagination"
	"mindfeed-auth/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// UserHandler handles user management endpoints
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// ListUsers handles listing users (Moderator or Admin)
// @Summary List users
// @Description Get a paginated list of users with optional search and role filter
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param search query string false "Matches username, email or full name"
// @Param role query string false "user, moderator or admin"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /users [get]
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	input := &services.ListUsersInput{
		Page:   params.Page,
		Limit:  params.Limit,
		Search: c.Query("search"),
		Role:   c.Query("role"),
	}

	result, err := h.userService.ListUsers(c.UserContext(), input)
	if err != nil {
		return handleError(c, err, "Failed to list users")
	}

	return response.Success(c, "Users retrieved successfully", result)
}

// Stats returns user statistics (Moderator or Admin)
// @Summary User statistics
// @Description Active users in total, per role, and registered today
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /users/stats [get]
func (h *UserHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.userService.GetStatistics(c.UserContext())
	if err != nil {
		return handleError(c, err, "Failed to get statistics")
	}

	return response.Success(c, "Statistics retrieved successfully", stats)
}

// GetUser handles getting a user by ID (Moderator or Admin)
// @Summary Get user by ID
// @Description Get a specific user by ID
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	user, err := h.userService.GetUserByID(c.UserContext(), id)
	if err != nil {
		return handleError(c, err, "Failed to get user")
	}

	return response.Success(c, "User retrieved successfully", fiber.Map{
		"user": user,
	})
}

// SetUserRoleRequest represents set user role request
type SetUserRoleRequest struct {
	Role string `json:"role"`
}

// SetUserRole handles setting user role (Admin only)
// @Summary Set user role
// @Description Set another user's role (Admin only)
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param body body SetUserRoleRequest true "Role data"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /users/{id}/role [patch]
func (h *UserHandler) SetUserRole(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req SetUserRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	adminID, _ := currentUserID(c)

	user, err := h.userService.UpdateRole(c.UserContext(), id, adminID, req.Role)
	if err != nil {
		return handleError(c, err, "Failed to set user role")
	}

	return response.Success(c, "User role updated successfully", fiber.Map{
		"user": user,
	})
}

// Deactivate handles deactivating a user (Admin only)
// @Summary Deactivate user
// @Description Deactivate another user and revoke all of their sessions (Admin only)
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /users/{id}/deactivate [post]
func (h *UserHandler) Deactivate(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	adminID, _ := currentUserID(c)

	if err := h.userService.Deactivate(c.UserContext(), id, adminID); err != nil {
		return handleError(c, err, "Failed to deactivate user")
	}

	return response.Success(c, "User deactivated successfully", nil)
}

// AuditLogs lists administrative actions (Admin only)
// @Summary List audit log
// @Description Role changes and deactivations, newest first
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param target_id query int false "Only entries about this user"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /users/audit [get]
func (h *UserHandler) AuditLogs(c *fiber.Ctx) error {
	targetID := c.QueryInt("target_id", 0)
	if targetID < 0 {
		return response.BadRequest(c, "Invalid target ID")
	}

	params := pagination.GetParams(c)
	result, err := h.userService.ListAuditLogs(c.UserContext(), uint(targetID), params.Page, params.Limit)
	if err != nil {
		return handleError(c, err, "Failed to list audit log")
	}

	return response.Success(c, "Audit log retrieved successfully", result)
}

// GetProfile handles getting own profile
// @Summary Get own profile
// @Description Get the current user's profile
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /profile [get]
func (h *UserHandler) GetProfile(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	return response.Success(c, "Profile retrieved successfully", fiber.Map{
		"user": user.ToResponse(),
	})
}

// UpdateProfileRequest represents update profile request body. Omitted
// fields are left unchanged.
type UpdateProfileRequest struct {
	Username  *string `json:"username"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
}

// UpdateProfile handles updating own profile
// @Summary Update own profile
// @Description Update the current user's username, name, avatar or bio
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body UpdateProfileRequest true "Update data"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /profile [put]
func (h *UserHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	input := &services.UpdateProfileInput{
		Username:  req.Username,
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
	}

	user, err := h.userService.UpdateProfile(c.UserContext(), userID, input)
	if err != nil {
		return handleError(c, err, "Failed to update profile")
	}

	return response.Success(c, "Profile updated successfully", fiber.Map{
		"user": user,
	})
}

// ChangePasswordRequest represents change password request body
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword handles changing password
// @Summary Change password
// @Description Change the current user's password and revoke every session
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ChangePasswordRequest true "Password data"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /profile/password [put]
func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.OldPassword == "" {
		return response.BadRequest(c, "Old password is required")
	}
	if req.NewPassword == "" {
		return response.BadRequest(c, "New password is required")
	}

	input := &services.ChangePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	}

	if err := h.userService.ChangePassword(c.UserContext(), userID, input); err != nil {
		if errors.Is(err, domain.ErrCredentialsInvalid) {
			return response.BadRequest(c, "Old password is incorrect")
		}
		return handleError(c, err, "Failed to change password")
	}

	return response.Success(c, "Password changed successfully", nil)
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
