package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SqliteService struct {
	context.DefaultService
	db   *gorm.DB
	docs DocumentStore

	database string
}

// Id returns Service ID
func (ds SqliteService) Id() string {
	return DATABASE_SVC
}

// Db Access to raw SqliteService db
func (ds SqliteService) Db() *gorm.DB {
	return ds.db
}

func (ds SqliteService) Documents() DocumentStore {
	return ds.docs
}

// Configure the service
func (ds *SqliteService) Configure(ctx *context.Context) error {
	ds.database = shared.GetEnv("DB_DATABASE", "lms_api.db")

	return ds.DefaultService.Configure(ctx)
}

// Start the service and open connection to the database
// Migrate any tables that have changed since last runtime
func (ds *SqliteService) Start() (err error) {
	ds.db, err = gorm.Open(sqlite.Open(ds.database), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return err
	}

	// sqlite allows a single writer
	if sqlDB, err := ds.db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	err = ds.db.AutoMigrate(&model.Document{})
	if err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	ds.docs = newClassifiedStore(ds.db, ds.HandleError)

	log.Println("Database connected and migrated successfully")
	return nil
}

func (ds *SqliteService) Shutdown() {
	if ds.db == nil {
		return
	}
	if sqlDB, err := ds.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (ds *SqliteService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError
		errorType = "TRANSACTION_ERROR"
	case errors.Is(err, shared.ErrMalformedDocument):
		statusCode = http.StatusUnprocessableEntity
		errorType = "MALFORMED_DOCUMENT"
	default:
		// Check for SQLite-specific errors
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			statusCode = http.StatusConflict
			errorType = "UNIQUE_CONSTRAINT"
		} else if strings.Contains(err.Error(), "no such table") {
			statusCode = http.StatusInternalServerError
			errorType = "SCHEMA_ERROR"
		} else if strings.Contains(err.Error(), "database is locked") {
			statusCode = http.StatusServiceUnavailable
			errorType = "DATABASE_LOCKED"
		} else {
			statusCode = http.StatusInternalServerError
			errorType = "INTERNAL_ERROR"
		}
	}

	return logDatabaseError(err, statusCode, errorType)
}
