package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/appointments/engine"
	"github.com/Skryldev/appointments/models"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler serves the appointments HTTP API.
type Handler struct {
	svc     *engine.Service
	health  HealthChecker
	version string
}

// NewHandler returns a Handler. health may be nil when the store has
// nothing to ping.
func NewHandler(svc *engine.Service, health HealthChecker, version string) *Handler {
	return &Handler{svc: svc, health: health, version: version}
}

// Root handles GET /.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Appointment Management API is running",
		"status":  "healthy",
		"version": h.version,
	})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// ListAppointments handles GET /api/appointments?date=&status=.
func (h *Handler) ListAppointments(c *gin.Context) {
	var q engine.ListQuery
	if raw := c.Query("date"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
			return
		}
		q.Date = &d
	}
	if raw, ok := c.GetQuery("status"); ok {
		q.Status = &raw
	}

	res, err := h.svc.ListAppointments(c.Request.Context(), q)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"appointments": res.Appointments,
		"count":        res.Count,
	})
}

// GetAppointment handles GET /api/appointments/:id.
func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	a, err := h.svc.GetAppointment(c.Request.Context(), id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "appointment": a})
}

// CreateAppointment handles POST /api/appointments.
func (h *Handler) CreateAppointment(c *gin.Context) {
	var params models.CreateAppointmentParams
	if !bindJSON(c, &params) {
		return
	}
	a, err := h.svc.CreateAppointment(c.Request.Context(), params)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PUT /api/appointments/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.svc.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     fmt.Sprintf("Appointment status updated to %s", a.Status),
		"appointment": a,
	})
}

// DeleteAppointment handles DELETE /api/appointments/:id.
func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deleted, err := h.svc.DeleteAppointment(c.Request.Context(), id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Appointment %d deleted successfully", deleted),
	})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.GetStats(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": st})
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid id: must be a positive integer")
		return 0, false
	}
	return id, true
}
