package handlers

import (
	"bytes"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ads-users/internal/api/dto"
	"github.com/spec-kit/ads-users/internal/auth"
	"github.com/spec-kit/ads-users/internal/service"
	apperrors "github.com/spec-kit/ads-users/pkg/util/errorutil"
)

// UsersHandler exposes the user CRUD endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users *service.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// List handles GET /users/?page=N.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	page, err := h.users.List(c.UserContext(), c.Query("page"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserListResponse(page))
}

// Get handles GET /users/:id/.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	user, err := h.users.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserResponse(user))
}

// Create handles POST /users/create/.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	req, err := parseUserRequest(c)
	if err != nil {
		return err
	}
	user, err := h.users.Create(c.UserContext(), auth.ActorName(c), req.ToInput())
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserResponse(user))
}

// Update handles PATCH /users/:id/update/.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	req, err := parseUserRequest(c)
	if err != nil {
		return err
	}
	user, err := h.users.Update(c.UserContext(), auth.ActorName(c), id, req.ToInput())
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserResponse(user))
}

// Delete handles DELETE /users/:id/delete/.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.users.Delete(c.UserContext(), auth.ActorName(c), id); err != nil {
		return err
	}
	return c.Status(fiber.StatusNoContent).Send(nil)
}

// userID reads the :id parameter. Anything but a positive integer cannot
// name a user, so it is reported as not found.
func userID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewNotFound("user", map[string]any{"id": raw})
	}
	return id, nil
}

// parseUserRequest decodes the body as JSON whatever the Content-Type says.
func parseUserRequest(c *fiber.Ctx) (*dto.UserRequest, error) {
	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperrors.NewValidationError("invalid payload", map[string]any{"body": "request body is required"})
	}
	var req dto.UserRequest
	if err := c.App().Config().JSONDecoder(body, &req); err != nil {
		return nil, apperrors.NewValidationError("invalid payload", map[string]any{"body": "malformed JSON"})
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}
