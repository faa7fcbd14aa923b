package dto

import (
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
)

type IssueCertificateRequest struct {
	DisplayName string `json:"displayName" validate:"omitempty,max=120,printable"`
}

func (r IssueCertificateRequest) Validate() error {
	return GetValidator().Struct(r)
}

type CertificateResponse struct {
	CertificateID string     `json:"certificateId"`
	UserID        string     `json:"userId"`
	CourseID      string     `json:"courseId"`
	CourseTitle   string     `json:"courseTitle,omitempty"`
	DisplayName   string     `json:"displayName,omitempty"`
	PDFURL        string     `json:"pdfUrl"`
	IssuedAt      time.Time  `json:"issuedAt"`
	ValidUntil    time.Time  `json:"validUntil"`
	Verified      bool       `json:"verified"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	Storage       string     `json:"storage"`
}

func NewCertificateResponse(rec *model.CertificateRecord) *CertificateResponse {
	if rec == nil {
		return nil
	}
	return &CertificateResponse{
		CertificateID: rec.CertificateID,
		UserID:        rec.UserID,
		CourseID:      rec.CourseID,
		CourseTitle:   rec.CourseTitle,
		DisplayName:   rec.DisplayName,
		PDFURL:        rec.PDFURL,
		IssuedAt:      rec.IssuedAt,
		ValidUntil:    rec.ValidUntil,
		Verified:      rec.Verified,
		VerifiedAt:    rec.VerifiedAt,
		Storage:       rec.Storage,
	}
}

type VerifyCertificateResponse struct {
	Valid       bool                 `json:"valid"`
	Expired     bool                 `json:"expired"`
	Certificate *CertificateResponse `json:"certificate,omitempty"`
}

type CertificateListResponse struct {
	Certificates []*CertificateResponse `json:"certificates"`
	Total        int                    `json:"total"`
}
