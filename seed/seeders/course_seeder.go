package seeders

import (
	"context"
	"log"
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/services"
	"github.com/lac-hong-legacy/lms_api/services/repositories"
	"gorm.io/gorm"
)

// CourseSeeder writes the demo catalogue into the document store
type CourseSeeder struct {
	courses *services.CourseService
}

func NewCourseSeeder(db *gorm.DB) *CourseSeeder {
	return &CourseSeeder{
		courses: services.NewCourseService(repositories.NewDocumentRepository(db), 10*time.Second),
	}
}

func (s *CourseSeeder) SeedCourses() error {
	for _, course := range demoCourses() {
		if err := s.courses.SaveCourse(context.Background(), course); err != nil {
			log.Printf("Error seeding course %s: %v", course.ID, err)
			return err
		}
		log.Printf("Seeded course %s (%d items)", course.ID, len(course.Items))
	}
	return nil
}

func demoCourses() []model.Course {
	return []model.Course{
		{
			ID:          "go-fundamentals",
			Title:       "Go Fundamentals",
			Description: "Types, interfaces and concurrency from first principles.",
			Items: []model.ContentItem{
				{ID: "intro", Type: "video", Title: "Welcome", URL: "https://cdn.example.com/go/intro.mp4", Duration: "4 min", Order: 1},
				{ID: "types", Type: "video", Title: "Types and Values", URL: "https://cdn.example.com/go/types.mp4", Duration: 780, Order: 2},
				{ID: "cheatsheet", Type: "pdf", Title: "Syntax Cheatsheet", URL: "https://cdn.example.com/go/cheatsheet.pdf", Order: 3},
				{ID: "goroutines", Type: "video", Title: "Goroutines and Channels", URL: "https://cdn.example.com/go/goroutines.mp4", Duration: "1 hr 5 min", Order: 4},
				{ID: "wrap-up", Type: "text", Title: "Where to Go Next", Content: "Read Effective Go and build something small.", Order: 5},
			},
		},
		{
			ID:          "http-services",
			Title:       "Building HTTP Services",
			Description: "Routing, middleware and graceful shutdown.",
			Items: []model.ContentItem{
				{ID: "routing", Type: "video", Title: "Routing", URL: "https://cdn.example.com/http/routing.mp4", Duration: 600, Order: 1},
				{ID: "middleware", Type: "video", Title: "Middleware", URL: "https://cdn.example.com/http/middleware.mp4", Duration: 540, Order: 2},
				{ID: "checklist", Type: "text", Title: "Production Checklist", Content: "Timeouts, health checks, structured logs.", Order: 3},
			},
		},
	}
}
