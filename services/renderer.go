package services

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/fogleman/gg"
	"github.com/go-pdf/fpdf"
)

type CertificateTemplate struct {
	DisplayName   string
	CourseTitle   string
	IssuedAt      time.Time
	CertificateID string
	IssuerName    string
	VerifyURL     string
}

// CertificateRenderer turns a template into PDF bytes. Implementations must be
// free of side effects.
type CertificateRenderer interface {
	Render(tpl CertificateTemplate) ([]byte, error)
}

const (
	// A4 landscape in millimetres, and the raster used for the background art.
	pageWidthMM  = 297.0
	pageHeightMM = 210.0
	artWidthPx   = 1754
	artHeightPx  = 1240
)

type PDFCertificateRenderer struct {
	fontPath string
}

// NewPDFCertificateRenderer uses the built-in Helvetica unless fontPath names a
// TrueType font, which is then used for every line of text.
func NewPDFCertificateRenderer(fontPath string) *PDFCertificateRenderer {
	return &PDFCertificateRenderer{fontPath: fontPath}
}

func (r *PDFCertificateRenderer) Render(tpl CertificateTemplate) ([]byte, error) {
	art, err := renderBackground()
	if err != nil {
		return nil, fmt.Errorf("render background: %w", err)
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "L",
		UnitStr:        "mm",
		SizeStr:        "A4",
	})
	pdf.SetTitle("Certificate "+tpl.CertificateID, true)
	pdf.SetCreator(tpl.IssuerName, true)
	pdf.SetCreationDate(tpl.IssuedAt)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	imgOpts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("background", imgOpts, bytes.NewReader(art))
	pdf.ImageOptions("background", 0, 0, pageWidthMM, pageHeightMM, false, imgOpts, 0, "")

	family, tr := r.fonts(pdf)

	centered := func(y, h float64, style string, size float64, rgb [3]int, text string) {
		pdf.SetFont(family, style, size)
		pdf.SetTextColor(rgb[0], rgb[1], rgb[2])
		pdf.SetXY(0, y)
		pdf.CellFormat(pageWidthMM, h, tr(text), "", 0, "C", false, 0, "")
	}

	ink := [3]int{45, 35, 20}
	gold := [3]int{160, 120, 30}
	muted := [3]int{110, 100, 90}

	centered(38, 16, "B", 34, gold, "Certificate of Completion")
	centered(62, 8, "", 14, muted, "This certifies that")
	centered(76, 16, "B", 30, ink, tpl.DisplayName)

	pdf.SetDrawColor(gold[0], gold[1], gold[2])
	pdf.SetLineWidth(0.6)
	pdf.Line(78, 95, pageWidthMM-78, 95)

	centered(102, 8, "", 14, muted, "has successfully completed")
	centered(114, 12, "B", 22, ink, tpl.CourseTitle)
	centered(134, 8, "", 12, muted, "Issued on "+tpl.IssuedAt.Format("January 2, 2006"))

	pdf.SetFont(family, "", 10)
	pdf.SetTextColor(muted[0], muted[1], muted[2])
	pdf.SetXY(28, 170)
	pdf.CellFormat(110, 6, tr("Certificate ID: "+tpl.CertificateID), "", 0, "L", false, 0, "")
	if tpl.VerifyURL != "" {
		pdf.SetXY(28, 176)
		pdf.CellFormat(140, 6, tr("Verify at "+tpl.VerifyURL), "", 0, "L", false, 0, tpl.VerifyURL)
	}
	if tpl.IssuerName != "" {
		pdf.SetFont(family, "B", 12)
		pdf.SetTextColor(ink[0], ink[1], ink[2])
		pdf.SetXY(pageWidthMM-138, 172)
		pdf.CellFormat(110, 6, tr(tpl.IssuerName), "", 0, "R", false, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return out.Bytes(), nil
}

// fonts registers the configured font, falling back to Helvetica with a
// cp1252 translator when none is usable.
func (r *PDFCertificateRenderer) fonts(pdf *fpdf.Fpdf) (string, func(string) string) {
	if r.fontPath != "" {
		if data, err := os.ReadFile(r.fontPath); err == nil {
			pdf.AddUTF8FontFromBytes("certificate", "", data)
			pdf.AddUTF8FontFromBytes("certificate", "B", data)
			if pdf.Ok() {
				return "certificate", func(s string) string { return s }
			}
			pdf.ClearError()
		}
	}
	return "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
}

// renderBackground draws the border art as a PNG.
func renderBackground() ([]byte, error) {
	w, h := float64(artWidthPx), float64(artHeightPx)
	dc := gg.NewContext(artWidthPx, artHeightPx)

	dc.SetColor(color.RGBA{R: 253, G: 250, B: 242, A: 255})
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	border := gg.NewLinearGradient(0, 0, w, h)
	border.AddColorStop(0, color.RGBA{R: 191, G: 149, B: 63, A: 255})
	border.AddColorStop(0.5, color.RGBA{R: 252, G: 246, B: 186, A: 255})
	border.AddColorStop(1, color.RGBA{R: 170, G: 119, B: 28, A: 255})
	dc.SetStrokeStyle(border)
	dc.SetLineWidth(36)
	dc.DrawRectangle(18, 18, w-36, h-36)
	dc.Stroke()

	dc.SetColor(color.RGBA{R: 170, G: 130, B: 50, A: 255})
	dc.SetLineWidth(3)
	dc.SetDash(18, 10)
	dc.DrawRoundedRectangle(70, 70, w-140, h-140, 24)
	dc.Stroke()
	dc.SetDash()

	// medal below the issuer line
	cx, cy := w-260.0, h-330.0
	medal := gg.NewRadialGradient(cx-20, cy-20, 10, cx, cy, 90)
	medal.AddColorStop(0, color.RGBA{R: 255, G: 236, B: 150, A: 255})
	medal.AddColorStop(1, color.RGBA{R: 196, G: 140, B: 40, A: 255})
	dc.SetFillStyle(medal)
	dc.DrawCircle(cx, cy, 90)
	dc.Fill()
	dc.SetColor(color.RGBA{R: 150, G: 105, B: 25, A: 255})
	dc.SetLineWidth(4)
	dc.DrawCircle(cx, cy, 72)
	dc.Stroke()

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
