package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/lac-hong-legacy/lms_api/services/handlers"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

type HttpService struct {
	appContext.DefaultService

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *appContext.Context) error {
	svc.port = shared.GetEnvInt("HTTP_PORT", 8000)
	return svc.DefaultService.Configure(ctx)
}

// Start blocks serving requests, so the service must be registered last.
func (svc *HttpService) Start() error {
	auth := svc.Service(AUTH_MIDDLEWARE_SVC).(*AuthMiddleware)

	var notifier handlers.CertificateNotifier
	if email, ok := svc.Service(EMAIL_SVC).(*EmailService); ok {
		notifier = email
	}

	routes := Routes{
		Auth:         auth.RequiredAuth(),
		Progress:     handlers.NewProgressHandler(svc.Service(PROGRESS_SVC).(*ProgressService)),
		Course:       handlers.NewCourseHandler(svc.Service(COURSE_SVC).(*CourseService), svc.Service(COMPLETION_SVC).(*CompletionService), notifier),
		Certificates: handlers.NewCertificateHandler(svc.Service(COURSE_SVC).(*CourseService), svc.Service(CERTIFICATE_SVC).(*CertificateService), svc.Service(VERIFIER_SVC).(*VerifierService), notifier),
		Session:      handlers.NewSessionHandler(svc.Service(SESSION_SVC).(*SessionService)),
	}
	if rl, ok := svc.Service(RATE_LIMIT_SVC).(*RateLimitService); ok {
		routes.RateLimit = rl.RateLimit
	}
	if mon, ok := svc.Service(MONITORING_SVC).(*MonitoringService); ok {
		routes.Monitoring = MonitoringMiddleware(mon)
	}

	svc.server = NewApp(routes)

	log.Printf("HTTP server listening on :%d", svc.port)
	return svc.server.Listen(fmt.Sprintf(":%d", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// Routes are the handlers and middleware mounted by NewApp. RateLimit and
// Monitoring are optional.
type Routes struct {
	Auth         fiber.Handler
	RateLimit    func(endpointType string) fiber.Handler
	Monitoring   fiber.Handler
	Progress     *handlers.ProgressHandler
	Course       *handlers.CourseHandler
	Certificates *handlers.CertificateHandler
	Session      *handlers.SessionHandler
}

func NewApp(r Routes) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ErrorHandler:          HandleError,
	})

	app.Use(recover.New())
	if os.Getenv("LOG_LEVEL") == "TRACE" {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",
		AllowHeaders: "Content-Type,Authorization," + shared.HeaderDeviceID,
	}))
	if r.Monitoring != nil {
		app.Use(r.Monitoring)
	}

	limit := func(endpointType string) fiber.Handler {
		if r.RateLimit == nil {
			return func(c *fiber.Ctx) error { return c.Next() }
		}
		return r.RateLimit(endpointType)
	}

	app.Get("/ping", ping)

	v1 := app.Group("/api/v1")
	v1.Get("/ping", ping)

	// Public
	v1.Get("/certificates/:certificateId", r.Certificates.Get)
	v1.Post("/verify/:certificateId", limit(EndpointCertificateVerify), r.Certificates.Verify)

	// Authenticated
	courses := v1.Group("/courses", r.Auth)
	courses.Get("/:courseId", r.Course.GetCourse)
	courses.Get("/:courseId/progress", r.Course.GetCourseProgress)
	courses.Get("/:courseId/items/:itemId/progress", r.Progress.GetProgress)
	courses.Put("/:courseId/items/:itemId/progress", r.Progress.SaveProgress)
	courses.Post("/:courseId/items/:itemId/complete", r.Course.ToggleItem)
	courses.Post("/:courseId/certificate", limit(EndpointCertificateIssue), r.Certificates.Issue)

	v1.Get("/certificates", r.Auth, r.Certificates.List)
	v1.Get("/session", r.Auth, r.Session.Current)
	v1.Post("/session/logout", r.Auth, r.Session.Logout)

	app.Use(func(c *fiber.Ctx) error {
		return shared.NewNotFoundError(nil, "page not found")
	})

	return app
}

func ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, http.StatusOK, "Success", "pong")
}

// HandleError renders errors returned by handlers in the response envelope.
func HandleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	switch {
	case errors.Is(err, session.ErrNoUser):
		return shared.ResponseJSON(c, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, session.ErrScopeClosed):
		return shared.ResponseJSON(c, http.StatusConflict, "Session changed, please retry", err.Error())
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).WithField("path", c.Path()).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
