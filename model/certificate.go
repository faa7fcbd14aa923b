package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultDisplayName = "Student"

var slotNamespace = uuid.MustParse("6f1c1c2e-5a43-4d4b-9a39-0c6b8f3d2e71")

type CertificateRecord struct {
	UserID        string     `json:"userId"`
	CourseID      string     `json:"courseId"`
	CertificateID string     `json:"certificateId"`
	CourseTitle   string     `json:"courseTitle,omitempty"`
	DisplayName   string     `json:"displayName,omitempty"`
	PDFURL        string     `json:"pdfUrl"`
	IssuedAt      time.Time  `json:"issuedAt"`
	ValidUntil    time.Time  `json:"validUntil"`
	Verified      bool       `json:"verified"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	Storage       string     `json:"storage"`
}

func (c CertificateRecord) Expired(now time.Time) bool {
	return !c.ValidUntil.IsZero() && now.After(c.ValidUntil)
}

// CertificateSlot reserves issuance for one (user, course) pair.
type CertificateSlot struct {
	UserID        string    `json:"userId"`
	CourseID      string    `json:"courseId"`
	CertificateID string    `json:"certificateId,omitempty"`
	Status        string    `json:"status"`
	ClaimedAt     time.Time `json:"claimedAt"`
}

// SlotKey is deterministic for a (user, course) pair.
func SlotKey(userID, courseID string) string {
	return uuid.NewSHA1(slotNamespace, []byte(userID+"/"+courseID)).String()
}

type Verification struct {
	Valid       bool
	Expired     bool
	Certificate *CertificateRecord
}

// ResolveDisplayName picks the name printed on a certificate: the given name,
// else the local part of the email, else a generic fallback.
func ResolveDisplayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return strings.TrimSpace(email[:at])
	}
	return defaultDisplayName
}
