package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/shared"
)

type SessionHandler struct {
	sessionSvc SessionServiceInterface
}

func NewSessionHandler(sessionSvc SessionServiceInterface) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// @Summary Current Session
// @Description Returns the identity bound to the calling device
// @Tags session
// @Produce json
// @Success 200 {object} shared.Response{data=dto.SessionResponse}
// @Router /api/v1/session [get]
func (h *SessionHandler) Current(c *fiber.Ctx) error {
	scope, err := scopeFrom(c)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.SessionResponse{
		UserID:   scope.UserID(),
		DeviceID: scope.DeviceID(),
	})
}

// @Summary Logout
// @Description Signs the calling device out. Pending progress is saved first.
// @Tags session
// @Produce json
// @Success 200
// @Router /api/v1/session/logout [post]
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	deviceID := localString(c, shared.DeviceID)
	h.sessionSvc.Logout(deviceID)

	return shared.ResponseJSON(c, fiber.StatusOK, "Logged out", nil)
}
