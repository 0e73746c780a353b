// Package response writes the JSON envelope every auth endpoint answers with.
package response

import "github.com/gofiber/fiber/v2"

// Response is the envelope. Data is set on success, Error on failure.
// Details lists each violated password rule on a weak-password 400.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details []string    `json:"details,omitempty"`
}

func send(c *fiber.Ctx, status int, body Response) error {
	return c.Status(status).JSON(body)
}

// Success answers 200
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return send(c, fiber.StatusOK, Response{Success: true, Message: message, Data: data})
}

// Created answers 201, used by registration
func Created(c *fiber.Ctx, message string, data interface{}) error {
	return send(c, fiber.StatusCreated, Response{Success: true, Message: message, Data: data})
}

// Error answers with an arbitrary failure status
func Error(c *fiber.Ctx, statusCode int, message string) error {
	return send(c, statusCode, Response{Error: message})
}

// ErrorWithDetails is Error plus the list of failed checks
func ErrorWithDetails(c *fiber.Ctx, statusCode int, message string, details []string) error {
	return send(c, statusCode, Response{Error: message, Details: details})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

// Unauthorized covers missing, expired, revoked and invalid credentials
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, message)
}

// Forbidden means authenticated but below the required role
func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, message)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, message)
}

// Conflict reports a taken email or username
func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, message)
}

// TooManyRequests is sent by the rate limiters
func TooManyRequests(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusTooManyRequests, message)
}

// InternalServerError never carries the underlying error text
func InternalServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}
