package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-calendar-api/internal/dto"
	"github.com/noah-isme/course-calendar-api/internal/models"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/response"
)

type slotService interface {
	List(ctx context.Context, courseID string) ([]models.WeeklyTimeSlot, error)
	Create(ctx context.Context, courseID string, req dto.SlotRequest) (*models.WeeklyTimeSlot, error)
	Update(ctx context.Context, slotID string, req dto.SlotRequest) (*models.WeeklyTimeSlot, error)
	Delete(ctx context.Context, slotID string) error
	Import(ctx context.Context, courseID string, req dto.ScheduleImportRequest) (*dto.ScheduleImportResult, error)
}

// SlotHandler manages the weekly slots of courses.
type SlotHandler struct {
	service slotService
}

// NewSlotHandler constructs the handler.
func NewSlotHandler(service slotService) *SlotHandler {
	return &SlotHandler{service: service}
}

// List godoc
// @Summary List weekly slots of a course
// @Tags Slots
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	slots, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Create godoc
// @Summary Add a weekly slot to a course
// @Tags Slots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.SlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	var req dto.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.service.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Replace a weekly slot
// @Tags Slots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Slot ID"
// @Param payload body dto.SlotRequest true "Slot payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id} [put]
func (h *SlotHandler) Update(c *gin.Context) {
	var req dto.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Delete a weekly slot
// @Tags Slots
// @Security BearerAuth
// @Param id path string true "Slot ID"
// @Success 204
// @Router /slots/{id} [delete]
func (h *SlotHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Import godoc
// @Summary Import a free-form schedule
// @Description Expands one interval on several days into discrete slots, all or nothing.
// @Tags Slots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.ScheduleImportRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/slots/import [post]
func (h *SlotHandler) Import(c *gin.Context) {
	var req dto.ScheduleImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Import(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
