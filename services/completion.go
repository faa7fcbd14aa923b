package services

import (
	"context"
	"errors"
	"sort"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/session"
	log "github.com/sirupsen/logrus"
)

const COMPLETION_SVC = "completion_svc"

// SortItems returns items ordered by ascending order value. Ties keep the
// order they were fetched in.
func SortItems(items []model.ContentItem) []model.ContentItem {
	out := make([]model.ContentItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// IsItemComplete is true when the item was explicitly toggled in this session
// or its stored record is completed.
func IsItemComplete(item model.ContentItem, rec *model.ProgressRecord, toggled bool) bool {
	if toggled {
		return true
	}
	return rec != nil && rec.Completed
}

func CompletedItemIDs(items []model.ContentItem, records map[string]*model.ProgressRecord, toggles map[string]bool) map[string]bool {
	completed := make(map[string]bool, len(items))
	for _, item := range items {
		if IsItemComplete(item, records[item.ID], toggles[item.ID]) {
			completed[item.ID] = true
		}
	}
	return completed
}

// IsCourseComplete requires every item to be complete. A course without items
// is never complete.
func IsCourseComplete(items []model.ContentItem, completed map[string]bool) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !completed[item.ID] {
			return false
		}
	}
	return true
}

// Summarize reports item totals and the mean progress percentage. Completed
// items count as fully watched.
func Summarize(items []model.ContentItem, records map[string]*model.ProgressRecord, completed map[string]bool) dto.ProgressSummary {
	summary := dto.ProgressSummary{TotalItems: len(items)}
	if len(items) == 0 {
		return summary
	}

	var total float64
	for _, item := range items {
		if completed[item.ID] {
			summary.CompletedItems++
			total += 100
			continue
		}
		if rec := records[item.ID]; rec != nil {
			total += rec.Ratio() * 100
		}
	}
	summary.AverageProgress = total / float64(len(items))
	return summary
}

type CompletionService struct {
	appContext.DefaultService

	progress     *ProgressService
	courses      *CourseService
	certificates *CertificateService
}

func NewCompletionService(progress *ProgressService, courses *CourseService, certificates *CertificateService) *CompletionService {
	return &CompletionService{
		progress:     progress,
		courses:      courses,
		certificates: certificates,
	}
}

func (svc CompletionService) Id() string {
	return COMPLETION_SVC
}

func (svc *CompletionService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *CompletionService) Start() error {
	svc.progress = svc.Service(PROGRESS_SVC).(*ProgressService)
	svc.courses = svc.Service(COURSE_SVC).(*CourseService)
	svc.certificates = svc.Service(CERTIFICATE_SVC).(*CertificateService)
	return nil
}

func (svc *CompletionService) Shutdown() {}

// Evaluate re-derives course completion for the scope's user. On the first
// evaluation that sees the course complete, a certificate is issued unless one
// already exists. Issuance failures are logged and retried on the next
// evaluation; they do not fail the evaluation itself.
func (svc *CompletionService) Evaluate(ctx context.Context, scope *session.Scope, courseID, displayName string) (*dto.CourseEvaluation, error) {
	course, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	completed, records, err := svc.progress.CompletedItems(ctx, scope, course)
	if err != nil {
		return nil, err
	}

	ev := &dto.CourseEvaluation{
		Course:    course,
		Items:     course.Items,
		Records:   records,
		Completed: completed,
		Complete:  IsCourseComplete(course.Items, completed),
		Summary:   Summarize(course.Items, records, completed),
	}

	ev.JustCompleted, err = scope.CompletionEdge(courseID, ev.Complete)
	if err != nil {
		return nil, err
	}
	if !ev.Complete {
		return ev, nil
	}

	existing, err := svc.certificates.FindForUserCourse(ctx, scope.UserID(), courseID)
	if err != nil {
		log.WithError(err).WithField("course_id", courseID).Warn("Certificate lookup failed")
		if ev.JustCompleted {
			scope.ResetCompletion(courseID)
		}
		return ev, nil
	}
	if existing != nil || !ev.JustCompleted {
		ev.Certificate = existing
		return ev, nil
	}

	cert, err := svc.certificates.Issue(ctx, scope, course, displayName)
	switch {
	case err == nil:
		ev.Certificate = cert
		ev.Issued = true
	case errors.Is(err, ErrCertificateExists), errors.Is(err, ErrIssuanceInProgress):
		ev.Certificate, _ = svc.certificates.FindForUserCourse(ctx, scope.UserID(), courseID)
	default:
		scope.ResetCompletion(courseID)
		log.WithError(err).WithFields(log.Fields{
			"user_id":   scope.UserID(),
			"course_id": courseID,
		}).Error("Automatic certificate issuance failed")
	}
	return ev, nil
}

// ToggleItem records an explicit completion choice. Marking done is also
// persisted; clearing only affects this session since stored completion never
// goes back to false.
func (svc *CompletionService) ToggleItem(ctx context.Context, scope *session.Scope, courseID, itemID string, done bool) error {
	course, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if !course.HasItem(itemID) {
		return errItemNotFound(itemID)
	}

	if err := scope.SetToggle(courseID, itemID, done); err != nil {
		return err
	}
	if !done {
		return nil
	}
	_, err = svc.progress.MarkComplete(ctx, scope, courseID, itemID)
	return err
}
