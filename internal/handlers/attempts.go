package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/store"
)

const defaultAttemptsLimit = 25

// AttemptsHandler lists webhook delivery attempts of a tenant
type AttemptsHandler struct {
	store  store.WebhookStore
	logger *zap.Logger
}

func NewAttemptsHandler(store store.WebhookStore, logger *zap.Logger) *AttemptsHandler {
	return &AttemptsHandler{store: store, logger: logger}
}

type AttemptsResponse struct {
	Attempts []AttemptDTO `json:"attempts"`
	HasMore  bool         `json:"has_more"`
}

type AttemptDTO struct {
	ID           string  `json:"id"`
	EventID      string  `json:"event_id"`
	EventType    string  `json:"event_type"`
	EndpointID   string  `json:"endpoint_id"`
	Status       string  `json:"status"`      // HTTP status code if a response was stored, otherwise the attempt status
	StatusCode   *int    `json:"status_code"` // last HTTP status
	AttemptCount int     `json:"attempt_count"`
	NextRetry    *string `json:"next_retry"`
	LastError    *string `json:"last_error"`
	Timestamp    string  `json:"timestamp"` // UTC ISO 8601
}

// GetAttempts handles GET /api/v1/webhooks/attempts
// Query parameters:
//   - tenant_id (required): project UUID
//   - limit (optional, default 25)
//   - offset (optional, default 0)
func (h *AttemptsHandler) GetAttempts(c *fiber.Ctx) error {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant_id query parameter must be a UUID",
		})
	}

	limit := defaultAttemptsLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsedLimit
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsedOffset, err := strconv.Atoi(offsetStr)
		if err != nil || parsedOffset < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "offset must be a non-negative integer",
			})
		}
		offset = parsedOffset
	}

	// One extra row tells us whether another page exists
	attempts, err := h.store.ListAttempts(c.UserContext(), store.AttemptFilter{
		ProjectID: tenantID,
		Limit:     limit + 1,
		Offset:    offset,
	})
	if err != nil {
		h.logger.Error("Failed to list delivery attempts",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch delivery attempts",
		})
	}

	hasMore := len(attempts) > limit
	if hasMore {
		attempts = attempts[:limit]
	}

	dtos := make([]AttemptDTO, 0, len(attempts))
	for _, attempt := range attempts {
		displayStatus, statusCode := displayStatus(attempt.Status, attempt.ResponseStatus)
		dto := AttemptDTO{
			ID:           attempt.ID.String(),
			EventID:      attempt.EventID.String(),
			EventType:    attempt.EventType,
			EndpointID:   attempt.EndpointID.String(),
			Status:       displayStatus,
			StatusCode:   statusCode,
			AttemptCount: attempt.AttemptCount,
			LastError:    attempt.LastError,
			Timestamp:    attempt.Timestamp.UTC().Format(time.RFC3339),
		}
		if attempt.NextRetry != nil {
			next := attempt.NextRetry.UTC().Format(time.RFC3339)
			dto.NextRetry = &next
		}
		dtos = append(dtos, dto)
	}

	return c.JSON(AttemptsResponse{Attempts: dtos, HasMore: hasMore})
}

func displayStatus(status string, httpStatus *int) (string, *int) {
	if httpStatus != nil {
		return strconv.Itoa(*httpStatus), httpStatus
	}
	return status, nil
}
