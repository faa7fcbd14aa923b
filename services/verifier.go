package services

import (
	"context"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

const VERIFIER_SVC = "verifier_svc"

type VerifierService struct {
	appContext.DefaultService

	store   DocumentStore
	locks   keyedMutex
	timeout time.Duration
	now     func() time.Time
}

func NewVerifierService(store DocumentStore, timeout time.Duration) *VerifierService {
	return &VerifierService{store: store, timeout: timeout, now: time.Now}
}

func (svc *VerifierService) Id() string {
	return VERIFIER_SVC
}

func (svc *VerifierService) Configure(ctx *appContext.Context) error {
	svc.timeout = shared.GetEnvDuration("STORE_TIMEOUT", 5*time.Second)
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *VerifierService) Start() error {
	svc.store = svc.Service(DATABASE_SVC).(DatabaseProvider).Documents()
	return nil
}

func (svc *VerifierService) Shutdown() {}

// Verify reports whether the certificate exists. The first successful
// verification stamps verified/verifiedAt; later calls leave them untouched.
func (svc *VerifierService) Verify(ctx context.Context, certificateID string) (bool, error) {
	v, err := svc.VerifyDetailed(ctx, certificateID)
	if err != nil {
		return false, err
	}
	return v.Valid, nil
}

func (svc *VerifierService) VerifyDetailed(ctx context.Context, certificateID string) (*model.Verification, error) {
	rec, key, err := lookupCertificate(ctx, svc.store, svc.timeout, certificateID)
	if err != nil {
		certificateVerificationsTotal.WithLabelValues("error").Inc()
		return nil, shared.NewUnavailableError(err, "Certificate store unavailable")
	}
	if rec == nil {
		certificateVerificationsTotal.WithLabelValues("not_found").Inc()
		return &model.Verification{}, nil
	}

	if !rec.Verified {
		rec, err = svc.markVerified(ctx, key, rec)
		if err != nil {
			certificateVerificationsTotal.WithLabelValues("error").Inc()
			return nil, shared.NewUnavailableError(err, "Failed to record verification")
		}
	}

	certificateVerificationsTotal.WithLabelValues("valid").Inc()
	return &model.Verification{
		Valid:       true,
		Expired:     rec.Expired(svc.now()),
		Certificate: rec,
	}, nil
}

// markVerified re-reads under the per-certificate lock so concurrent first
// verifications stamp verifiedAt once.
func (svc *VerifierService) markVerified(ctx context.Context, key string, rec *model.CertificateRecord) (*model.CertificateRecord, error) {
	unlock := svc.locks.Lock(key)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	if snap, err := svc.store.Get(ctx, shared.CollectionCertificates, key); err == nil && snap != nil {
		if current, ok := decodeCertificate(*snap); ok {
			rec = current
		}
	}
	if rec.Verified {
		return rec, nil
	}

	now := svc.now().UTC()
	if err := svc.store.Set(ctx, shared.CollectionCertificates, key, model.Fields{
		"verified":   true,
		"verifiedAt": now,
	}, true); err != nil {
		return nil, err
	}

	log.WithField("certificate_id", rec.CertificateID).Info("Certificate verified for the first time")
	rec.Verified = true
	rec.VerifiedAt = &now
	return rec, nil
}
