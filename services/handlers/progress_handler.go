package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
)

type ProgressHandler struct {
	progressSvc ProgressServiceInterface
}

func NewProgressHandler(progressSvc ProgressServiceInterface) *ProgressHandler {
	return &ProgressHandler{progressSvc: progressSvc}
}

// @Summary Get Item Progress
// @Description Returns the caller's saved position for one item
// @Tags progress
// @Produce json
// @Param courseId path string true "Course ID"
// @Param itemId path string true "Item ID"
// @Success 200 {object} shared.Response{data=dto.ProgressResponse}
// @Router /api/v1/courses/{courseId}/items/{itemId}/progress [get]
func (h *ProgressHandler) GetProgress(c *fiber.Ctx) error {
	scope, err := scopeFrom(c)
	if err != nil {
		return err
	}

	itemID := c.Params("itemId")
	rec, err := h.progressSvc.Load(c.UserContext(), scope, c.Params("courseId"), itemID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.NewProgressResponse(itemID, rec))
}

// @Summary Save Item Progress
// @Description Records playback position. Ticks are coalesced; pause and ended write through.
// @Tags progress
// @Accept  json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param itemId path string true "Item ID"
// @Param saveProgressRequest body dto.SaveProgressRequest true "Progress"
// @Success 200 {object} shared.Response{data=dto.ProgressResponse}
// @Router /api/v1/courses/{courseId}/items/{itemId}/progress [put]
func (h *ProgressHandler) SaveProgress(c *fiber.Ctx) error {
	scope, err := scopeFrom(c)
	if err != nil {
		return err
	}

	var req dto.SaveProgressRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	courseID, itemID := c.Params("courseId"), c.Params("itemId")

	var rec *model.ProgressRecord
	switch req.Event {
	case shared.ProgressEventPause, shared.ProgressEventEnded:
		rec, err = h.progressSvc.Flush(c.UserContext(), scope, courseID, itemID, req.CurrentTime, req.Duration, req.Event)
	default:
		rec, err = h.progressSvc.Save(c.UserContext(), scope, courseID, itemID, req.CurrentTime, req.Duration)
	}
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.NewProgressResponse(itemID, rec))
}
