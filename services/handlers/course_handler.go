package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/shared"
)

type CourseHandler struct {
	courseSvc     CourseServiceInterface
	completionSvc CompletionServiceInterface
	notifier      CertificateNotifier
}

func NewCourseHandler(courseSvc CourseServiceInterface, completionSvc CompletionServiceInterface, notifier CertificateNotifier) *CourseHandler {
	return &CourseHandler{
		courseSvc:     courseSvc,
		completionSvc: completionSvc,
		notifier:      notifier,
	}
}

// @Summary Get Course
// @Description Returns a course with its items in display order
// @Tags course
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} shared.Response{data=dto.CourseResponse}
// @Router /api/v1/courses/{courseId} [get]
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	course, err := h.courseSvc.GetCourse(c.UserContext(), c.Params("courseId"))
	if err != nil {
		return err
	}

	items := make([]dto.ContentItemResponse, 0, len(course.Items))
	for _, item := range course.Items {
		items = append(items, dto.ContentItemResponse{
			ID:       item.ID,
			Type:     item.Type,
			Title:    item.Title,
			URL:      item.URL,
			Content:  item.Content,
			Duration: shared.DisplayDuration(item.Duration),
			Order:    item.Order,
		})
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.CourseResponse{
		ID:          course.ID,
		Title:       course.Title,
		Description: course.Description,
		Items:       items,
	})
}

// @Summary Get Course Progress
// @Description Re-derives completion for the caller and issues the certificate the first time the course is complete
// @Tags course
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} shared.Response{data=dto.CourseProgressResponse}
// @Router /api/v1/courses/{courseId}/progress [get]
func (h *CourseHandler) GetCourseProgress(c *fiber.Ctx) error {
	scope, err := scopeFrom(c)
	if err != nil {
		return err
	}

	ev, err := h.completionSvc.Evaluate(c.UserContext(), scope, c.Params("courseId"), localString(c, shared.DisplayName))
	if err != nil {
		return err
	}

	res := dto.CourseProgressResponse{
		CourseID:      ev.Course.ID,
		Items:         make([]dto.ProgressResponse, 0, len(ev.Items)),
		Summary:       ev.Summary,
		CompletedIDs:  make([]string, 0, len(ev.Completed)),
		Complete:      ev.Complete,
		JustCompleted: ev.JustCompleted,
		Certificate:   dto.NewCertificateResponse(ev.Certificate),
	}
	for _, item := range ev.Items {
		p := dto.NewProgressResponse(item.ID, ev.Records[item.ID])
		if ev.Completed[item.ID] {
			p.Completed = true
			res.CompletedIDs = append(res.CompletedIDs, item.ID)
		}
		res.Items = append(res.Items, p)
	}

	if ev.Issued {
		notifyIssued(h.notifier, localString(c, shared.Email), ev.Certificate)
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", res)
}

// @Summary Toggle Item Completion
// @Description Marks an item done or not done for the caller
// @Tags course
// @Accept  json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param itemId path string true "Item ID"
// @Param toggleCompleteRequest body dto.ToggleCompleteRequest true "Toggle request"
// @Success 200
// @Router /api/v1/courses/{courseId}/items/{itemId}/complete [post]
func (h *CourseHandler) ToggleItem(c *fiber.Ctx) error {
	scope, err := scopeFrom(c)
	if err != nil {
		return err
	}

	var req dto.ToggleCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	courseID, itemID := c.Params("courseId"), c.Params("itemId")
	if err := h.completionSvc.ToggleItem(c.UserContext(), scope, courseID, itemID, *req.Completed); err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", fiber.Map{
		"itemId":    itemID,
		"completed": *req.Completed,
	})
}
