package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
)

type CertificateHandler struct {
	courseSvc      CourseServiceInterface
	certificateSvc CertificateServiceInterface
	verifierSvc    VerifierServiceInterface
	notifier       CertificateNotifier
}

func NewCertificateHandler(courseSvc CourseServiceInterface, certificateSvc CertificateServiceInterface, verifierSvc VerifierServiceInterface, notifier CertificateNotifier) *CertificateHandler {
	return &CertificateHandler{
		courseSvc:      courseSvc,
		certificateSvc: certificateSvc,
		verifierSvc:    verifierSvc,
		notifier:       notifier,
	}
}

// @Summary Issue Certificate
// @Description Issues the completion certificate for a finished course
// @Tags certificate
// @Accept  json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param issueCertificateRequest body dto.IssueCertificateRequest false "Name override"
// @Success 201 {object} shared.Response{data=dto.CertificateResponse}
// @Failure 409 {object} shared.Response
// @Failure 412 {object} shared.Response
// @Router /api/v1/courses/{courseId}/certificate [post]
func (h *CertificateHandler) Issue(c *fiber.Ctx) error {
	scope, err := scopeFrom(c)
	if err != nil {
		return err
	}

	var req dto.IssueCertificateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return shared.NewBadRequestError(err, "Invalid request")
		}
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	course, err := h.courseSvc.GetCourse(c.UserContext(), c.Params("courseId"))
	if err != nil {
		return err
	}

	name := req.DisplayName
	if name == "" {
		name = localString(c, shared.DisplayName)
	}
	// Mail only ever goes to the address the token was issued for.
	email := localString(c, shared.Email)

	rec, err := h.certificateSvc.Issue(c.UserContext(), scope, course, model.ResolveDisplayName(name, email))
	if err != nil {
		return err
	}
	notifyIssued(h.notifier, email, rec)

	return shared.ResponseJSON(c, fiber.StatusCreated, "Certificate issued", dto.NewCertificateResponse(rec))
}

// @Summary List Certificates
// @Description Lists the caller's certificates, newest first
// @Tags certificate
// @Produce json
// @Success 200 {object} shared.Response{data=dto.CertificateListResponse}
// @Router /api/v1/certificates [get]
func (h *CertificateHandler) List(c *fiber.Ctx) error {
	scope, err := scopeFrom(c)
	if err != nil {
		return err
	}

	records, err := h.certificateSvc.ListForUser(c.UserContext(), scope.UserID())
	if err != nil {
		return err
	}

	res := dto.CertificateListResponse{
		Certificates: make([]*dto.CertificateResponse, 0, len(records)),
		Total:        len(records),
	}
	for i := range records {
		res.Certificates = append(res.Certificates, dto.NewCertificateResponse(&records[i]))
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", res)
}

// @Summary Get Certificate
// @Description Public lookup of a certificate by id
// @Tags certificate
// @Produce json
// @Param certificateId path string true "Certificate ID"
// @Success 200 {object} shared.Response{data=dto.CertificateResponse}
// @Router /api/v1/certificates/{certificateId} [get]
func (h *CertificateHandler) Get(c *fiber.Ctx) error {
	rec, err := h.certificateSvc.Get(c.UserContext(), c.Params("certificateId"))
	if err != nil {
		return err
	}
	if rec == nil {
		return shared.NewNotFoundError(shared.ErrNotFound, "Certificate not found")
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.NewCertificateResponse(rec))
}

// @Summary Verify Certificate
// @Description Confirms a certificate exists. The first verification is recorded on the certificate.
// @Tags certificate
// @Produce json
// @Param certificateId path string true "Certificate ID"
// @Success 200 {object} shared.Response{data=dto.VerifyCertificateResponse}
// @Router /api/v1/verify/{certificateId} [post]
func (h *CertificateHandler) Verify(c *fiber.Ctx) error {
	v, err := h.verifierSvc.VerifyDetailed(c.UserContext(), c.Params("certificateId"))
	if err != nil {
		return err
	}

	res := dto.VerifyCertificateResponse{
		Valid:       v.Valid,
		Expired:     v.Expired,
		Certificate: dto.NewCertificateResponse(v.Certificate),
	}
	if !v.Valid {
		return shared.ResponseJSON(c, fiber.StatusNotFound, "Certificate not found", res)
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Certificate is valid", res)
}
