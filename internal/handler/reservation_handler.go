package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tourney-pipeline/internal/dto"
	"github.com/noah-isme/tourney-pipeline/internal/models"
	appErrors "github.com/noah-isme/tourney-pipeline/pkg/errors"
	"github.com/noah-isme/tourney-pipeline/pkg/response"
)

type reservationReader interface {
	Status(ctx context.Context, t models.ResourceType, id int64) (models.ReservationStatus, error)
}

// ReservationHandler exposes fetch reservation state for debugging duplicate work.
type ReservationHandler struct {
	dedup reservationReader
}

// NewReservationHandler builds the handler.
func NewReservationHandler(dedup reservationReader) *ReservationHandler {
	return &ReservationHandler{dedup: dedup}
}

// Get godoc
// @Summary Get reservation status
// @Tags Reservations
// @Produce json
// @Param type path string true "Resource type (match, beatmap, beatmapset, player)"
// @Param id path int true "Upstream resource ID"
// @Success 200 {object} response.Envelope
// @Router /internal/reservations/{type}/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	resource := models.ResourceType(c.Param("type"))
	if !resource.IsValid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown resource type"))
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "id must be a positive integer"))
		return
	}
	status, err := h.dedup.Status(c.Request.Context(), resource, id)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "reservation store unavailable"))
		return
	}
	response.JSON(c, http.StatusOK, dto.ReservationStatusResponse{Type: resource, ID: id, Status: status})
}
