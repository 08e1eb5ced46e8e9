// Package response provides the JSON envelope of the HTTP API.
package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Standard API Response
// =============================================================================

// Response is the standard API response structure.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Meta      *Meta      `json:"meta,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Meta carries list metadata.
type Meta struct {
	Total int `json:"total"`
}

// =============================================================================
// Response Builders
// =============================================================================

// OK returns a successful response.
func OK(c *fiber.Ctx, data any) error {
	return c.JSON(Response{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

// OKWithMeta returns a successful response with metadata.
func OKWithMeta(c *fiber.Ctx, data any, meta *Meta) error {
	return c.JSON(Response{
		Success:   true,
		Data:      data,
		Meta:      meta,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

// Accepted returns a 202 for work queued for later.
func Accepted(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusAccepted).JSON(Response{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

// WithStatus returns data under a non-200 status, for results that carry a
// failure alongside their payload.
func WithStatus(c *fiber.Ctx, status int, data any, info *ErrorInfo) error {
	return c.Status(status).JSON(Response{
		Success:   status < 400,
		Data:      data,
		Error:     info,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
