package handlers

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mit-27/panora-sync/internal/webhook"
)

type VerifyRequest struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	Secret    string          `json:"secret"`
}

// VerifySignature handles POST /api/v1/webhooks/verify. The payload is
// compacted before hashing so it matches what the sender signed.
func VerifySignature(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if len(req.Payload) == 0 || req.Signature == "" || req.Secret == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payload, signature and secret are required",
		})
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, req.Payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payload must be valid JSON",
		})
	}

	if err := webhook.VerifySignature(compact.Bytes(), req.Signature, req.Secret); err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"valid": false,
				"error": "invalid signature",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"valid": true})
}
