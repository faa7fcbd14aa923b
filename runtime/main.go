package main

import (
	"os"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/lac-hong-legacy/lms_api/services"
	"github.com/rs/zerolog/log"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded, using environment")
	}

	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}

	ctx, err := context.NewCtx(
		databaseService(),
		&services.RedisService{},
		blobService(),
		&services.JWTService{},

		&services.ProgressService{},
		&services.CourseService{},
		&services.CertificateService{},
		&services.CompletionService{},
		&services.VerifierService{},
		&services.SessionService{},
		&services.EmailService{},

		&services.AuthMiddleware{},
		&services.RateLimitService{},
		&services.MonitoringService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build service context")
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Service context stopped")
		return
	}
}

func databaseService() context.Service {
	switch os.Getenv("DB_DRIVER") {
	case "postgres":
		return &services.PostgresService{}
	default:
		return &services.SqliteService{}
	}
}

func blobService() context.Service {
	switch os.Getenv("BLOB_BACKEND") {
	case "bunny":
		return &services.BunnyService{}
	default:
		return &services.MinIOService{}
	}
}
