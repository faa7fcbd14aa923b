package services

import (
	"net/http"
	"strings"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

const AUTH_MIDDLEWARE_SVC = "auth"

type tokenVerifier interface {
	ExtractTokenFromHeader(authHeader string) (string, error)
	VerifyJWTToken(jwtToken string) (*CustomClaims, error)
}

type sessionBinder interface {
	Bind(deviceID, userID string) (*session.Scope, error)
}

type AuthMiddleware struct {
	appContext.DefaultService

	jwtSvc     tokenVerifier
	sessionSvc sessionBinder
}

func NewAuthMiddleware(jwtSvc tokenVerifier, sessionSvc sessionBinder) *AuthMiddleware {
	return &AuthMiddleware{jwtSvc: jwtSvc, sessionSvc: sessionSvc}
}

func (svc AuthMiddleware) Id() string {
	return AUTH_MIDDLEWARE_SVC
}

func (svc *AuthMiddleware) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthMiddleware) Start() error {
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	svc.sessionSvc = svc.Service(SESSION_SVC).(*SessionService)
	return nil
}

func (svc *AuthMiddleware) Shutdown() {}

// RequiredAuth verifies the bearer token and binds the caller's device to the
// token's user before the handler runs.
func (svc *AuthMiddleware) RequiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := svc.jwtSvc.ExtractTokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return shared.ResponseJSON(c, http.StatusUnauthorized, "Unauthorized", err.Error())
		}

		claims, err := svc.jwtSvc.VerifyJWTToken(token)
		if err != nil {
			return shared.ResponseJSON(c, http.StatusUnauthorized, "Unauthorized", "Invalid JWT token")
		}

		deviceID := strings.TrimSpace(c.Get(shared.HeaderDeviceID))
		if deviceID == "" {
			deviceID = claims.UserID
		}

		scope, err := svc.sessionSvc.Bind(deviceID, claims.UserID)
		if err != nil {
			log.WithError(err).WithField("device_id", deviceID).Warn("Failed to bind session")
			return shared.ResponseJSON(c, http.StatusUnauthorized, "Unauthorized", "No active session")
		}

		c.Locals(shared.UserID, claims.UserID)
		c.Locals(shared.DeviceID, deviceID)
		c.Locals(shared.SessionScope, scope)
		c.Locals(shared.DisplayName, claims.Name)
		c.Locals(shared.Email, claims.Email)
		return c.Next()
	}
}
