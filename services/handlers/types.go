package handlers

import (
	"context"

	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/session"
)

type ProgressServiceInterface interface {
	Load(ctx context.Context, scope *session.Scope, courseID, itemID string) (*model.ProgressRecord, error)
	Save(ctx context.Context, scope *session.Scope, courseID, itemID string, currentTime, duration float64) (*model.ProgressRecord, error)
	Flush(ctx context.Context, scope *session.Scope, courseID, itemID string, currentTime, duration float64, reason string) (*model.ProgressRecord, error)
}

type CourseServiceInterface interface {
	GetCourse(ctx context.Context, courseID string) (*model.Course, error)
}

type CompletionServiceInterface interface {
	Evaluate(ctx context.Context, scope *session.Scope, courseID, displayName string) (*dto.CourseEvaluation, error)
	ToggleItem(ctx context.Context, scope *session.Scope, courseID, itemID string, done bool) error
}

type CertificateServiceInterface interface {
	Issue(ctx context.Context, scope *session.Scope, course *model.Course, displayName string) (*model.CertificateRecord, error)
	Get(ctx context.Context, certificateID string) (*model.CertificateRecord, error)
	ListForUser(ctx context.Context, userID string) ([]model.CertificateRecord, error)
}

type VerifierServiceInterface interface {
	VerifyDetailed(ctx context.Context, certificateID string) (*model.Verification, error)
}

type SessionServiceInterface interface {
	Logout(deviceID string) bool
}

type CertificateNotifier interface {
	SendCertificateIssued(email string, rec *model.CertificateRecord) error
}
