package seeders

import (
	"log"

	"gorm.io/gorm"
)

// MainSeeder coordinates all seeding operations
type MainSeeder struct {
	db        *gorm.DB
	jwtSecret string
}

// NewMainSeeder creates a new main seeder
func NewMainSeeder(db *gorm.DB, jwtSecret string) *MainSeeder {
	return &MainSeeder{db: db, jwtSecret: jwtSecret}
}

// SeedAll runs all seeders in the correct order
func (s *MainSeeder) SeedAll() error {
	log.Println("Starting database seeding...")

	if err := s.SeedCoursesOnly(); err != nil {
		log.Printf("Course seeding failed: %v", err)
		return err
	}

	if s.jwtSecret == "" {
		log.Println("JWT_SECRET not set, skipping demo learner token")
	} else if err := s.SeedLearnerOnly(); err != nil {
		log.Printf("Learner seeding failed: %v", err)
		return err
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// SeedCoursesOnly seeds only courses
func (s *MainSeeder) SeedCoursesOnly() error {
	return NewCourseSeeder(s.db).SeedCourses()
}

// SeedLearnerOnly prints a token for the demo learner
func (s *MainSeeder) SeedLearnerOnly() error {
	_, err := NewLearnerSeeder(s.jwtSecret).SeedLearner("demo-learner", "Demo Learner", "learner@example.com")
	return err
}
