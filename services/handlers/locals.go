package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

func scopeFrom(c *fiber.Ctx) (*session.Scope, error) {
	scope, ok := c.Locals(shared.SessionScope).(*session.Scope)
	if !ok || scope == nil {
		return nil, session.ErrNoUser
	}
	if err := scope.Err(); err != nil {
		return nil, err
	}
	return scope, nil
}

func localString(c *fiber.Ctx, key string) string {
	s, _ := c.Locals(key).(string)
	return s
}

// notifyIssued emails the learner off the request path.
func notifyIssued(notifier CertificateNotifier, email string, rec *model.CertificateRecord) {
	if notifier == nil || email == "" || rec == nil {
		return
	}
	go func() {
		if err := notifier.SendCertificateIssued(email, rec); err != nil {
			log.WithError(err).WithField("certificate_id", rec.CertificateID).Warn("Failed to send certificate email")
		}
	}()
}
