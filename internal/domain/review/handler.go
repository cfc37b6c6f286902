// Package review exposes the archived decisions over HTTP for manual review
// tooling. The surface is read-only; decisions are only ever written by the
// pipeline.
package review

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rxguard/rxguard/internal/domain/decision"
	"github.com/rxguard/rxguard/pkg/pagination"
)

type Handler struct {
	archive decision.ArchiveRepository
	health  func() error
}

// NewHandler wires the review routes over the archive. health is invoked by
// GET /health; nil means no dependency check.
func NewHandler(archive decision.ArchiveRepository, health func() error) *Handler {
	return &Handler{archive: archive, health: health}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/decisions", h.ListDecisions)
	api.GET("/decisions/:id", h.GetDecision)
	api.GET("/decisions/:id/logs", h.GetDecisionLogs)
	api.GET("/stats", h.GetStats)
	api.GET("/health", h.Health)
}

func (h *Handler) ListDecisions(c echo.Context) error {
	pg := pagination.FromContext(c)
	results, total, err := h.archive.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(results, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDecision(c echo.Context) error {
	id := c.Param("id")
	r, err := h.archive.GetByPrescriptionID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, decision.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "decision not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetDecisionLogs(c echo.Context) error {
	logs, err := h.archive.ListLogs(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *Handler) GetStats(c echo.Context) error {
	counts, err := h.archive.CountByDecision(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total":    total,
		"approved": counts[decision.Approve],
		"rejected": counts[decision.Reject],
		"held":     counts[decision.Hold],
		"errors":   counts[decision.Error],
	})
}

func (h *Handler) Health(c echo.Context) error {
	if h.health != nil {
		if err := h.health(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy", "error": err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
