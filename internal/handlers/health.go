package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by store.Store
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueHealth is satisfied by webhook.Queue
type QueueHealth interface {
	Healthy() bool
}

type HealthHandler struct {
	store Pinger
	queue QueueHealth
}

func NewHealthHandler(store Pinger, queue QueueHealth) *HealthHandler {
	return &HealthHandler{store: store, queue: queue}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	status := "healthy"

	if err := h.store.Ping(ctx); err != nil {
		services["store"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		services["store"] = "healthy"
	}

	if h.queue == nil || !h.queue.Healthy() {
		services["queue"] = "unhealthy: connection closed"
		status = "unhealthy"
	} else {
		services["queue"] = "healthy"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	if status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}

	return c.JSON(response)
}
