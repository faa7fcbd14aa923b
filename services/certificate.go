package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

const CERTIFICATE_SVC = "certificate_svc"

var (
	ErrCourseIncomplete   = errors.New("course is not complete")
	ErrCertificateExists  = errors.New("certificate already issued")
	ErrIssuanceInProgress = errors.New("certificate issuance already in progress")
)

type CertificateConfig struct {
	Validity      time.Duration
	SlotLease     time.Duration
	StoreTimeout  time.Duration
	BlobTimeout   time.Duration
	IssuerName    string
	VerifyBaseURL string
}

func DefaultCertificateConfig() CertificateConfig {
	return CertificateConfig{
		Validity:     365 * 24 * time.Hour,
		SlotLease:    10 * time.Minute,
		StoreTimeout: 5 * time.Second,
		BlobTimeout:  30 * time.Second,
		IssuerName:   "LMS Academy",
	}
}

// CertificateService issues at most one certificate per (user, course). A
// deterministic slot document is claimed with a conditional create before any
// side effect, so concurrent issuance for the same pair cannot both proceed.
type CertificateService struct {
	appContext.DefaultService

	store    DocumentStore
	blob     BlobStore
	renderer CertificateRenderer
	progress *ProgressService
	cfg      CertificateConfig

	now   func() time.Time
	newID func(time.Time) string
}

func NewCertificateService(store DocumentStore, blob BlobStore, renderer CertificateRenderer, progress *ProgressService, cfg CertificateConfig) *CertificateService {
	return &CertificateService{
		store:    store,
		blob:     blob,
		renderer: renderer,
		progress: progress,
		cfg:      cfg,
		now:      time.Now,
		newID:    NewCertificateID,
	}
}

func (svc CertificateService) Id() string {
	return CERTIFICATE_SVC
}

func (svc *CertificateService) Configure(ctx *appContext.Context) error {
	svc.cfg = DefaultCertificateConfig()
	svc.cfg.Validity = time.Duration(shared.GetEnvInt("CERT_VALIDITY_DAYS", 365)) * 24 * time.Hour
	svc.cfg.SlotLease = shared.GetEnvDuration("CERT_SLOT_LEASE", svc.cfg.SlotLease)
	svc.cfg.StoreTimeout = shared.GetEnvDuration("STORE_TIMEOUT", svc.cfg.StoreTimeout)
	svc.cfg.BlobTimeout = shared.GetEnvDuration("BLOB_TIMEOUT", svc.cfg.BlobTimeout)
	svc.cfg.IssuerName = shared.GetEnv("CERT_ISSUER_NAME", svc.cfg.IssuerName)
	svc.cfg.VerifyBaseURL = shared.GetEnv("VERIFY_BASE_URL", "")
	svc.renderer = NewPDFCertificateRenderer(shared.GetEnv("CERT_FONT_PATH", ""))
	svc.now = time.Now
	svc.newID = NewCertificateID
	return svc.DefaultService.Configure(ctx)
}

func (svc *CertificateService) Start() error {
	svc.store = svc.Service(DATABASE_SVC).(DatabaseProvider).Documents()
	svc.blob = svc.Service(BLOB_SVC).(BlobStore)
	svc.progress = svc.Service(PROGRESS_SVC).(*ProgressService)
	return nil
}

func (svc *CertificateService) Shutdown() {}

// NewCertificateID returns CERT-<unix millis>-<9 random uppercase alphanumerics>.
func NewCertificateID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:9]
	return fmt.Sprintf("CERT-%d-%s", now.UnixMilli(), suffix)
}

// Issue creates the certificate for the scope's user once the course is
// complete. Completion and uniqueness are re-checked here regardless of what
// the caller saw.
func (svc *CertificateService) Issue(ctx context.Context, scope *session.Scope, course *model.Course, displayName string) (*model.CertificateRecord, error) {
	if err := scope.Err(); err != nil {
		return nil, err
	}
	userID := scope.UserID()
	logEntry := log.WithFields(log.Fields{"user_id": userID, "course_id": course.ID})

	completed, _, err := svc.progress.CompletedItems(ctx, scope, course)
	if err != nil {
		return nil, svc.fail("precheck", err)
	}
	if !IsCourseComplete(course.Items, completed) {
		certificatesIssuedTotal.WithLabelValues("incomplete").Inc()
		return nil, shared.NewPreconditionError(ErrCourseIncomplete, "Course is not complete")
	}

	existing, err := svc.FindForUserCourse(ctx, userID, course.ID)
	if err != nil {
		return nil, svc.fail("precheck", shared.NewUnavailableError(err, "Certificate store unavailable"))
	}
	if existing != nil {
		certificatesIssuedTotal.WithLabelValues("exists").Inc()
		return nil, certificateExists(existing)
	}

	slotKey := model.SlotKey(userID, course.ID)
	if err := svc.claimSlot(ctx, slotKey, userID, course.ID); err != nil {
		return nil, err
	}

	rec, err := svc.issueClaimed(ctx, scope, course, displayName)
	if err != nil {
		svc.releaseSlot(slotKey)
		logEntry.WithError(err).Error("Certificate issuance failed")
		return nil, err
	}

	sctx, cancel := context.WithTimeout(context.Background(), svc.cfg.StoreTimeout)
	defer cancel()
	if err := svc.store.Set(sctx, shared.CollectionCertificateSlots, slotKey, model.Fields{
		"status":        shared.SlotStatusIssued,
		"certificateId": rec.CertificateID,
	}, true); err != nil {
		logEntry.WithError(err).Warn("Failed to mark certificate slot issued")
	}

	certificatesIssuedTotal.WithLabelValues("issued").Inc()
	logEntry.WithField("certificate_id", rec.CertificateID).Info("Certificate issued")
	return rec, nil
}

func (svc *CertificateService) issueClaimed(ctx context.Context, scope *session.Scope, course *model.Course, displayName string) (*model.CertificateRecord, error) {
	issuedAt := svc.now().UTC()
	certID := svc.newID(issuedAt)
	title := course.Title
	if strings.TrimSpace(title) == "" {
		title = defaultCourseTitle
	}

	pdf, err := svc.renderer.Render(CertificateTemplate{
		DisplayName:   model.ResolveDisplayName(displayName, ""),
		CourseTitle:   title,
		IssuedAt:      issuedAt,
		CertificateID: certID,
		IssuerName:    svc.cfg.IssuerName,
		VerifyURL:     svc.verifyURL(certID),
	})
	if err != nil {
		return nil, svc.fail("render_error", shared.NewInternalError(err, "Failed to render certificate"))
	}

	// The session may have ended while rendering; nothing durable has happened yet.
	if err := scope.Err(); err != nil {
		return nil, err
	}

	path := CertificateObjectPath(scope.UserID(), course.ID, certID)
	uctx, cancel := context.WithTimeout(ctx, svc.cfg.BlobTimeout)
	url, err := svc.blob.Upload(uctx, path, pdf, shared.ContentTypePDF)
	cancel()
	if err != nil {
		return nil, svc.fail("upload_error", shared.NewUnavailableError(err, "Failed to upload certificate, please retry"))
	}

	rec := &model.CertificateRecord{
		UserID:        scope.UserID(),
		CourseID:      course.ID,
		CertificateID: certID,
		CourseTitle:   title,
		DisplayName:   model.ResolveDisplayName(displayName, ""),
		PDFURL:        url,
		IssuedAt:      issuedAt,
		ValidUntil:    issuedAt.Add(svc.cfg.Validity),
		Verified:      false,
		Storage:       svc.blob.Backend(),
	}
	fields, err := model.ToFields(rec)
	if err != nil {
		return nil, svc.fail("persist_error", shared.NewInternalError(err, "Failed to encode certificate"))
	}

	pctx, cancel := context.WithTimeout(ctx, svc.cfg.StoreTimeout)
	defer cancel()
	if err := svc.store.Set(pctx, shared.CollectionCertificates, certID, fields, false); err != nil {
		svc.discardBlob(path)
		return nil, svc.fail("persist_error", shared.NewUnavailableError(err, "Failed to save certificate, please retry"))
	}
	return rec, nil
}

// claimSlot reserves issuance for the pair. A pending claim older than the
// lease is treated as abandoned and taken over once.
func (svc *CertificateService) claimSlot(ctx context.Context, slotKey, userID, courseID string) error {
	ctx, cancel := context.WithTimeout(ctx, svc.cfg.StoreTimeout)
	defer cancel()

	slot := model.CertificateSlot{
		UserID:    userID,
		CourseID:  courseID,
		Status:    shared.SlotStatusPending,
		ClaimedAt: svc.now().UTC(),
	}
	fields, err := model.ToFields(slot)
	if err != nil {
		return shared.NewInternalError(err, "Failed to encode certificate slot")
	}

	for attempt := 0; attempt < 2; attempt++ {
		created, err := svc.store.CreateIfAbsent(ctx, shared.CollectionCertificateSlots, slotKey, fields)
		if err != nil {
			return svc.fail("precheck", shared.NewUnavailableError(err, "Certificate store unavailable"))
		}
		if created {
			return nil
		}

		snap, err := svc.store.Get(ctx, shared.CollectionCertificateSlots, slotKey)
		if err != nil && !errors.Is(err, shared.ErrMalformedDocument) {
			return svc.fail("precheck", shared.NewUnavailableError(err, "Certificate store unavailable"))
		}
		if snap == nil {
			// Released between our create and read; try again.
			continue
		}

		var current model.CertificateSlot
		if err := model.FromFields(snap.Fields, &current); err != nil {
			current = model.CertificateSlot{}
		}
		if current.Status == shared.SlotStatusIssued {
			certificatesIssuedTotal.WithLabelValues("exists").Inc()
			return shared.NewConflictError(ErrCertificateExists, "Certificate already issued")
		}
		if attempt == 0 && svc.now().Sub(current.ClaimedAt) > svc.cfg.SlotLease {
			// Only the claim we read may be removed; a concurrent takeover
			// has already replaced it with a fresh one.
			removed, err := svc.store.DeleteIf(ctx, shared.CollectionCertificateSlots, slotKey, model.Fields{
				"status":    shared.SlotStatusPending,
				"claimedAt": snap.Fields["claimedAt"],
			})
			if err != nil {
				return svc.fail("precheck", shared.NewUnavailableError(err, "Certificate store unavailable"))
			}
			if removed {
				log.WithField("slot", slotKey).Warn("Took over abandoned certificate slot")
			}
			continue
		}
		break
	}

	certificatesIssuedTotal.WithLabelValues("in_progress").Inc()
	return shared.NewConflictError(ErrIssuanceInProgress, "Certificate issuance already in progress")
}

func (svc *CertificateService) releaseSlot(slotKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), svc.cfg.StoreTimeout)
	defer cancel()
	if err := svc.store.Delete(ctx, shared.CollectionCertificateSlots, slotKey); err != nil {
		log.WithError(err).WithField("slot", slotKey).Warn("Failed to release certificate slot")
	}
}

func (svc *CertificateService) discardBlob(path string) {
	deleter, ok := svc.blob.(BlobDeleter)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), svc.cfg.BlobTimeout)
	defer cancel()
	if err := deleter.Delete(ctx, path); err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to remove orphaned certificate file")
	}
}

func (svc *CertificateService) fail(result string, err error) error {
	certificatesIssuedTotal.WithLabelValues(result).Inc()
	return err
}

func (svc *CertificateService) verifyURL(certID string) string {
	if svc.cfg.VerifyBaseURL == "" {
		return ""
	}
	return joinURL(svc.cfg.VerifyBaseURL, certID)
}

// Get looks a certificate up by id. A missing certificate is nil, nil.
func (svc *CertificateService) Get(ctx context.Context, certificateID string) (*model.CertificateRecord, error) {
	rec, _, err := lookupCertificate(ctx, svc.store, svc.cfg.StoreTimeout, certificateID)
	if err != nil {
		return nil, shared.NewUnavailableError(err, "Certificate store unavailable")
	}
	return rec, nil
}

// ListForUser returns the user's certificates, newest first.
func (svc *CertificateService) ListForUser(ctx context.Context, userID string) ([]model.CertificateRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.cfg.StoreTimeout)
	defer cancel()

	snaps, err := svc.store.Query(ctx, shared.CollectionCertificates, model.Fields{"userId": userID})
	if err != nil {
		return nil, shared.NewUnavailableError(err, "Certificate store unavailable")
	}

	out := make([]model.CertificateRecord, 0, len(snaps))
	for _, snap := range snaps {
		if rec, ok := decodeCertificate(snap); ok {
			out = append(out, *rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

func (svc *CertificateService) FindForUserCourse(ctx context.Context, userID, courseID string) (*model.CertificateRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.cfg.StoreTimeout)
	defer cancel()

	snaps, err := svc.store.Query(ctx, shared.CollectionCertificates, model.Fields{
		"userId":   userID,
		"courseId": courseID,
	})
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		if rec, ok := decodeCertificate(snap); ok {
			return rec, nil
		}
	}
	return nil, nil
}

func (svc *CertificateService) HasCertificate(ctx context.Context, userID, courseID string) (bool, error) {
	rec, err := svc.FindForUserCourse(ctx, userID, courseID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// lookupCertificate finds a certificate by document key, then by its
// certificateId field for records stored under another key.
func lookupCertificate(ctx context.Context, store DocumentStore, timeout time.Duration, certificateID string) (*model.CertificateRecord, string, error) {
	if strings.TrimSpace(certificateID) == "" {
		return nil, "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snap, err := store.Get(ctx, shared.CollectionCertificates, certificateID)
	if err != nil && !errors.Is(err, shared.ErrMalformedDocument) {
		return nil, "", err
	}
	if snap != nil {
		if rec, ok := decodeCertificate(*snap); ok {
			return rec, snap.Key, nil
		}
	}

	snaps, err := store.Query(ctx, shared.CollectionCertificates, model.Fields{"certificateId": certificateID})
	if err != nil {
		return nil, "", err
	}
	for _, s := range snaps {
		if rec, ok := decodeCertificate(s); ok {
			return rec, s.Key, nil
		}
	}
	return nil, "", nil
}

func decodeCertificate(snap model.Snapshot) (*model.CertificateRecord, bool) {
	var rec model.CertificateRecord
	if err := model.FromFields(snap.Fields, &rec); err != nil {
		log.WithError(err).WithField("key", snap.Key).Debug("Skipping malformed certificate record")
		return nil, false
	}
	if rec.CertificateID == "" {
		rec.CertificateID = snap.Key
	}
	return &rec, true
}

func certificateExists(rec *model.CertificateRecord) error {
	appErr := shared.NewConflictError(ErrCertificateExists, "Certificate already issued")
	appErr.Data = map[string]string{"certificateId": rec.CertificateID}
	return appErr
}
