package model

import (
	"strings"
	"time"
)

// ContentItem is one unit of course content. Duration is either seconds or a
// free-form string such as "12 min" and is only used for display.
type ContentItem struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Title    string      `json:"title"`
	URL      string      `json:"url,omitempty"`
	Content  string      `json:"content,omitempty"`
	Duration interface{} `json:"duration,omitempty"`
	Order    float64     `json:"order"`
}

type Course struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Items       []ContentItem `json:"items"`
}

// ProgressRecord is the per (user, course, item) progress document. The item id
// is stored as videoId for compatibility with existing records.
type ProgressRecord struct {
	UserID      string    `json:"userId"`
	CourseID    string    `json:"courseId"`
	ItemID      string    `json:"videoId"`
	CurrentTime float64   `json:"currentTime"`
	Duration    float64   `json:"duration"`
	Completed   bool      `json:"completed"`
	LastWatched time.Time `json:"lastWatched"`
}

// Ratio is the watched fraction, zero when the duration is unknown.
func (p ProgressRecord) Ratio() float64 {
	if p.Duration <= 0 {
		return 0
	}
	r := p.CurrentTime / p.Duration
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

var progressKeyEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// ProgressKey joins the ids with "_", escaping "%" and "_" inside each id so
// distinct triples never share a key. Ids without either character produce
// the same key as LegacyProgressKey.
func ProgressKey(userID, courseID, itemID string) string {
	return strings.Join([]string{
		progressKeyEscaper.Replace(userID),
		progressKeyEscaper.Replace(courseID),
		progressKeyEscaper.Replace(itemID),
	}, "_")
}

// LegacyProgressKey is the unescaped key older records were written under.
func LegacyProgressKey(userID, courseID, itemID string) string {
	return strings.Join([]string{userID, courseID, itemID}, "_")
}

func (c Course) HasItem(itemID string) bool {
	for _, item := range c.Items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}
