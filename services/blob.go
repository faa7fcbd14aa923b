package services

import (
	"context"
	"fmt"
	"strings"
)

const BLOB_SVC = "blob_svc"

// BlobStore uploads an object and returns a URL it can be fetched from.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// Backend names the storage provider, recorded on each certificate.
	Backend() string
}

// BlobDeleter is implemented by stores that can remove an uploaded object.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

func CertificateObjectPath(userID, courseID, certificateID string) string {
	return fmt.Sprintf("certificates/%s/%s/%s.pdf", userID, courseID, certificateID)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
