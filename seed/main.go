package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/seed/seeders"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var (
		seedType = flag.String("type", "all", "Type of seeding: all, courses, learner")
		dbPath   = flag.String("db", "", "SQLite database path (overrides DB_DATABASE env var)")
		help     = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	db, err := openDatabase(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&model.Document{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	mainSeeder := seeders.NewMainSeeder(db, os.Getenv("JWT_SECRET"))

	switch *seedType {
	case "all":
		log.Println("Running complete database seeding...")
		err = mainSeeder.SeedAll()
	case "courses":
		log.Println("Seeding courses only...")
		err = mainSeeder.SeedCoursesOnly()
	case "learner":
		err = mainSeeder.SeedLearnerOnly()
	default:
		log.Fatalf("Unknown seed type: %s. Use 'all', 'courses' or 'learner'", *seedType)
	}
	if err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	log.Println("Seeding operation completed successfully!")
}

func openDatabase(dbPath string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if os.Getenv("DB_DRIVER") == "postgres" {
		log.Println("Connecting to postgres")
		return gorm.Open(postgres.Open(os.Getenv("DATABASE_URL")), cfg)
	}

	if dbPath == "" {
		dbPath = os.Getenv("DB_DATABASE")
		if dbPath == "" {
			dbPath = "lms_api.db"
		}
	}
	log.Printf("Connecting to sqlite database: %s", dbPath)
	return gorm.Open(sqlite.Open(dbPath), cfg)
}

func showHelp() {
	log.Print(`
Database Seeding Tool for the LMS course service

Usage: go run ./seed [flags]

Flags:
  -type string
        Type of seeding to perform (default "all")
        Options: all, courses, learner
  -db string
        SQLite database path (overrides DB_DATABASE environment variable)
  -help
        Show this help message

Environment Variables:
  DB_DRIVER    - sqlite (default) or postgres
  DATABASE_URL - postgres DSN when DB_DRIVER=postgres
  DB_DATABASE  - sqlite path (default: lms_api.db)
  JWT_SECRET   - signs the demo learner token
`)
}
