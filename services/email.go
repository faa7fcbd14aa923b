package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"os"
	"strings"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/model"
	log "github.com/sirupsen/logrus"
)

const EMAIL_SVC = "email_svc"

// EmailService tells learners about newly issued certificates. Without
// SMTP_HOST it logs and skips.
type EmailService struct {
	appContext.DefaultService

	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
	fromName     string
	verifyURL    string

	templates map[string]*template.Template
	send      func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (svc EmailService) Id() string {
	return EMAIL_SVC
}

func (svc *EmailService) Configure(ctx *appContext.Context) error {
	svc.smtpHost = os.Getenv("SMTP_HOST")
	svc.smtpPort = os.Getenv("SMTP_PORT")
	svc.smtpUsername = os.Getenv("SMTP_USERNAME")
	svc.smtpPassword = os.Getenv("SMTP_PASSWORD")
	svc.fromEmail = os.Getenv("FROM_EMAIL")
	svc.fromName = os.Getenv("FROM_NAME")
	svc.verifyURL = os.Getenv("VERIFY_BASE_URL")

	if svc.smtpPort == "" {
		svc.smtpPort = "587"
	}
	if svc.fromName == "" {
		svc.fromName = "LMS Academy"
	}

	svc.templates = make(map[string]*template.Template)
	svc.send = smtp.SendMail

	return svc.DefaultService.Configure(ctx)
}

func (svc *EmailService) Start() error {
	if err := svc.loadTemplates(); err != nil {
		log.WithError(err).Error("Failed to load email templates")
	}
	return nil
}

func (svc *EmailService) Shutdown() {}

const certificateIssuedEmailHTML = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Your certificate for {{.CourseTitle}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #A0781E; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background-color: #fdfaf2; }
        .button { display: inline-block; padding: 12px 24px; background-color: #A0781E; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
        .footer { padding: 20px; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Congratulations, {{.DisplayName}}!</h1>
        </div>
        <div class="content">
            <p>You have completed <strong>{{.CourseTitle}}</strong>. Your certificate is ready.</p>
            <a href="{{.PDFURL}}" class="button">Download Certificate</a>
            <p>Certificate ID: {{.CertificateID}}</p>
            {{if .VerifyURL}}<p>Anyone can confirm it at <a href="{{.VerifyURL}}">{{.VerifyURL}}</a>.</p>{{end}}
            <p>Valid until {{.ValidUntil}}.</p>
        </div>
        <div class="footer">
            <p>{{.AppName}}</p>
        </div>
    </div>
</body>
</html>
`

type CertificateEmailData struct {
	AppName       string
	DisplayName   string
	CourseTitle   string
	CertificateID string
	PDFURL        string
	VerifyURL     string
	ValidUntil    string
}

func (svc *EmailService) loadTemplates() error {
	if svc.templates == nil {
		svc.templates = make(map[string]*template.Template)
	}

	tmpl, err := template.New("certificate_issued").Parse(certificateIssuedEmailHTML)
	if err != nil {
		return fmt.Errorf("failed to parse certificate email template: %v", err)
	}
	svc.templates["certificate_issued"] = tmpl
	return nil
}

// SendCertificateIssued emails the learner a link to their new certificate.
func (svc *EmailService) SendCertificateIssued(email string, rec *model.CertificateRecord) error {
	if svc.smtpHost == "" {
		log.Warn("SMTP not configured, skipping certificate email")
		return nil
	}
	if email == "" || rec == nil {
		return nil
	}

	data := CertificateEmailData{
		AppName:       svc.fromName,
		DisplayName:   model.ResolveDisplayName(rec.DisplayName, email),
		CourseTitle:   rec.CourseTitle,
		CertificateID: rec.CertificateID,
		PDFURL:        rec.PDFURL,
		ValidUntil:    rec.ValidUntil.Format("January 2, 2006"),
	}
	if svc.verifyURL != "" {
		data.VerifyURL = joinURL(svc.verifyURL, rec.CertificateID)
	}

	subject := fmt.Sprintf("Your certificate for %s", rec.CourseTitle)
	return svc.sendTemplateEmail(email, subject, "certificate_issued", data)
}

func (svc *EmailService) sendTemplateEmail(to, subject, templateName string, data interface{}) error {
	tmpl, exists := svc.templates[templateName]
	if !exists {
		return fmt.Errorf("template %s not found", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute template: %v", err)
	}

	return svc.sendEmail(to, subject, body.String())
}

func (svc *EmailService) sendEmail(to, subject, body string) error {
	// Header injection guard.
	if strings.ContainsAny(to+subject, "\r\n") {
		return fmt.Errorf("invalid email header")
	}

	auth := smtp.PlainAuth("", svc.smtpUsername, svc.smtpPassword, svc.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		svc.fromName, svc.fromEmail, to, subject, body))

	send := svc.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(svc.smtpHost+":"+svc.smtpPort, auth, svc.fromEmail, []string{to}, msg); err != nil {
		log.WithError(err).WithFields(log.Fields{"to": to, "subject": subject}).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %v", err)
	}

	log.WithFields(log.Fields{"to": to, "subject": subject}).Info("Email sent successfully")
	return nil
}
