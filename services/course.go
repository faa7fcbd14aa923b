package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
)

const COURSE_SVC = "course_svc"

const defaultCourseTitle = "Course Completion"

type CourseService struct {
	appContext.DefaultService

	store   DocumentStore
	timeout time.Duration
}

func NewCourseService(store DocumentStore, timeout time.Duration) *CourseService {
	return &CourseService{store: store, timeout: timeout}
}

func (svc CourseService) Id() string {
	return COURSE_SVC
}

func (svc *CourseService) Configure(ctx *appContext.Context) error {
	svc.timeout = shared.GetEnvDuration("STORE_TIMEOUT", 5*time.Second)
	return svc.DefaultService.Configure(ctx)
}

func (svc *CourseService) Start() error {
	svc.store = svc.Service(DATABASE_SVC).(DatabaseProvider).Documents()
	return nil
}

func (svc *CourseService) Shutdown() {}

// GetCourse loads a course with its items sorted for display.
func (svc *CourseService) GetCourse(ctx context.Context, courseID string) (*model.Course, error) {
	if courseID == "" {
		return nil, shared.NewBadRequestError(nil, "course id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	snap, err := svc.store.Get(ctx, shared.CollectionCourses, courseID)
	if errors.Is(err, shared.ErrMalformedDocument) {
		return nil, shared.NewNotFoundError(err, "Course not found")
	}
	if err != nil {
		return nil, shared.NewUnavailableError(err, "Course store unavailable")
	}
	if snap == nil {
		return nil, shared.NewNotFoundError(shared.ErrNotFound, "Course not found")
	}

	var course model.Course
	if err := model.FromFields(snap.Fields, &course); err != nil {
		return nil, shared.NewNotFoundError(fmt.Errorf("%w: %v", shared.ErrMalformedDocument, err), "Course not found")
	}
	course.ID = courseID
	if strings.TrimSpace(course.Title) == "" {
		course.Title = defaultCourseTitle
	}
	course.Items = SortItems(course.Items)
	return &course, nil
}

// SaveCourse replaces the stored course document.
func (svc *CourseService) SaveCourse(ctx context.Context, course model.Course) error {
	if course.ID == "" {
		return shared.NewBadRequestError(nil, "course id is required")
	}
	fields, err := model.ToFields(course)
	if err != nil {
		return err
	}
	delete(fields, "id")

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()
	return svc.store.Set(ctx, shared.CollectionCourses, course.ID, fields, false)
}

func errItemNotFound(itemID string) error {
	return shared.NewNotFoundError(fmt.Errorf("item %q: %w", itemID, shared.ErrNotFound), "Item not found")
}
