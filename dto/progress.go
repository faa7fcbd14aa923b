package dto

import (
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
)

type SaveProgressRequest struct {
	CurrentTime float64 `json:"currentTime" validate:"gte=0"`
	Duration    float64 `json:"duration" validate:"gte=0"`
	Event       string  `json:"event" validate:"omitempty,oneof=tick pause ended"`
}

func (r SaveProgressRequest) Validate() error {
	return GetValidator().Struct(r)
}

type ToggleCompleteRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

func (r ToggleCompleteRequest) Validate() error {
	return GetValidator().Struct(r)
}

type ProgressResponse struct {
	ItemID      string     `json:"itemId"`
	CurrentTime float64    `json:"currentTime"`
	Duration    float64    `json:"duration"`
	Progress    float64    `json:"progress"`
	Completed   bool       `json:"completed"`
	LastWatched *time.Time `json:"lastWatched,omitempty"`
}

func NewProgressResponse(itemID string, rec *model.ProgressRecord) ProgressResponse {
	if rec == nil {
		return ProgressResponse{ItemID: itemID}
	}
	resp := ProgressResponse{
		ItemID:      itemID,
		CurrentTime: rec.CurrentTime,
		Duration:    rec.Duration,
		Progress:    rec.Ratio() * 100,
		Completed:   rec.Completed,
	}
	if !rec.LastWatched.IsZero() {
		lw := rec.LastWatched
		resp.LastWatched = &lw
	}
	return resp
}

type ProgressSummary struct {
	TotalItems      int     `json:"totalItems"`
	CompletedItems  int     `json:"completedItems"`
	AverageProgress float64 `json:"averageProgress"`
}

type CourseProgressResponse struct {
	CourseID      string               `json:"courseId"`
	Items         []ProgressResponse   `json:"items"`
	Summary       ProgressSummary      `json:"summary"`
	CompletedIDs  []string             `json:"completedItemIds"`
	Complete      bool                 `json:"complete"`
	JustCompleted bool                 `json:"justCompleted"`
	Certificate   *CertificateResponse `json:"certificate,omitempty"`
}

type ContentItemResponse struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Title    string  `json:"title"`
	URL      string  `json:"url,omitempty"`
	Content  string  `json:"content,omitempty"`
	Duration string  `json:"duration,omitempty"`
	Order    float64 `json:"order"`
}

type CourseResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description,omitempty"`
	Items       []ContentItemResponse `json:"items"`
}

// CourseEvaluation is the derived completion state of one course for one user.
type CourseEvaluation struct {
	Course        *model.Course
	Items         []model.ContentItem
	Records       map[string]*model.ProgressRecord
	Completed     map[string]bool
	Complete      bool
	JustCompleted bool
	Summary       ProgressSummary
	Certificate   *model.CertificateRecord

	// Issued is set when Certificate was created by this evaluation.
	Issued bool
}
