package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/go-resty/resty/v2"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

const defaultBunnyStorageHost = "storage.bunnycdn.com"

// BunnyService stores objects in a Bunny.net storage zone and serves them from
// the zone's pull CDN.
type BunnyService struct {
	appContext.DefaultService

	client     *resty.Client
	storageURL string
	zone       string
	accessKey  string
	cdnURL     string
	timeout    time.Duration
}

func NewBunnyService(storageURL, zone, accessKey, cdnURL string, timeout time.Duration) *BunnyService {
	svc := &BunnyService{
		storageURL: storageURL,
		zone:       zone,
		accessKey:  accessKey,
		cdnURL:     cdnURL,
		timeout:    timeout,
	}
	svc.initClient()
	return svc
}

func (svc BunnyService) Id() string {
	return BLOB_SVC
}

func (svc *BunnyService) Configure(ctx *appContext.Context) error {
	svc.zone = shared.GetEnv("BUNNY_STORAGE_ZONE", "lms-certificates")
	svc.accessKey = strings.TrimSpace(shared.GetEnv("BUNNY_ACCESS_KEY", ""))
	svc.cdnURL = shared.GetEnv("BUNNY_CDN_URL", "https://lms-certificates-pull.b-cdn.net")
	svc.timeout = shared.GetEnvDuration("BLOB_TIMEOUT", 30*time.Second)

	host := defaultBunnyStorageHost
	if region := shared.GetEnv("BUNNY_REGION", "de"); region != "de" {
		host = region + "." + defaultBunnyStorageHost
	}
	svc.storageURL = shared.GetEnv("BUNNY_STORAGE_URL", "https://"+host)

	return svc.DefaultService.Configure(ctx)
}

func (svc *BunnyService) Start() error {
	if svc.accessKey == "" {
		return fmt.Errorf("bunny storage access key not configured")
	}
	svc.initClient()
	log.Printf("Bunny storage service started for zone: %s", svc.zone)
	return nil
}

func (svc *BunnyService) Shutdown() {}

func (svc *BunnyService) Backend() string {
	return "bunny"
}

func (svc *BunnyService) initClient() {
	svc.client = resty.New().
		SetBaseURL(strings.TrimRight(svc.storageURL, "/")).
		SetTimeout(svc.timeout).
		SetHeader("AccessKey", svc.accessKey)
}

func (svc *BunnyService) objectURL(path string) string {
	return fmt.Sprintf("/%s/%s", svc.zone, strings.TrimLeft(path, "/"))
}

func (svc *BunnyService) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = shared.ContentTypePDF
	}

	resp, err := svc.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Put(svc.objectURL(path))
	if err != nil {
		return "", fmt.Errorf("bunny upload %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("bunny upload %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}

	return joinURL(svc.cdnURL, path), nil
}

func (svc *BunnyService) Delete(ctx context.Context, path string) error {
	resp, err := svc.client.R().
		SetContext(ctx).
		Delete(svc.objectURL(path))
	if err != nil {
		return fmt.Errorf("bunny delete %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("bunny delete %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}
