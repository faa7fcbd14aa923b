package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

type MinIOService struct {
	appContext.DefaultService
	client     *minio.Client
	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	publicURL  string
	useSSL     bool
	timeout    time.Duration
}

func (svc MinIOService) Id() string {
	return BLOB_SVC
}

func (svc *MinIOService) Configure(ctx *appContext.Context) error {
	svc.endpoint = shared.GetEnv("MINIO_ENDPOINT", "localhost:9000")
	svc.accessKey = shared.GetEnv("MINIO_ACCESS_KEY", "admin")
	svc.secretKey = shared.GetEnv("MINIO_SECRET_KEY", "password123")
	svc.useSSL = os.Getenv("MINIO_USE_SSL") == "true"
	svc.bucketName = shared.GetEnv("MINIO_BUCKET_NAME", "lms-certificates")
	svc.timeout = shared.GetEnvDuration("BLOB_TIMEOUT", 30*time.Second)

	scheme := "http"
	if svc.useSSL {
		scheme = "https"
	}
	svc.publicURL = shared.GetEnv("MINIO_PUBLIC_URL", fmt.Sprintf("%s://%s", scheme, svc.endpoint))

	return svc.DefaultService.Configure(ctx)
}

func (svc *MinIOService) Start() error {
	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %v", err)
	}

	svc.client = client

	if err := svc.ensureBucket(); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %v", err)
	}

	log.Printf("MinIO service started successfully with endpoint: %s", svc.endpoint)
	return nil
}

func (svc *MinIOService) Shutdown() {}

func (svc *MinIOService) Backend() string {
	return "minio"
}

func (svc *MinIOService) ensureBucket() error {
	ctx, cancel := context.WithTimeout(context.Background(), svc.timeout)
	defer cancel()

	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
		log.Printf("Created MinIO bucket: %s", svc.bucketName)
	}

	return nil
}

func (svc *MinIOService) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = shared.ContentTypePDF
	}

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	_, err := svc.client.PutObject(ctx, svc.bucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to MinIO: %w", err)
	}

	return joinURL(svc.publicURL, svc.bucketName+"/"+objectName), nil
}

func (svc *MinIOService) Delete(ctx context.Context, objectName string) error {
	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	err := svc.client.RemoveObject(ctx, svc.bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file from MinIO: %w", err)
	}

	return nil
}
