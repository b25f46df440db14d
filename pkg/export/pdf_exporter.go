package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders tabular listings and clearance certificates.
type PDFExporter struct {
	institution string
}

// NewPDFExporter constructs a PDF exporter. institution heads every certificate.
func NewPDFExporter(institution string) *PDFExporter {
	if institution == "" {
		institution = "Clearance System"
	}
	return &PDFExporter{institution: institution}
}

// ContentType reports the MIME type of rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Render creates a landscape table of the dataset under title.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 9)
	colWidth := 277.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return output(pdf)
}

// CertificateApproval is one signed-off stage printed on a certificate.
type CertificateApproval struct {
	Department string
	ApprovedAt time.Time
}

// Certificate holds the values printed on a clearance certificate.
type Certificate struct {
	StudentName string
	StudentID   string
	Department  string
	RequestID   string
	CompletedAt time.Time
	Approvals   []CertificateApproval
}

// RenderCertificate produces the one page clearance certificate.
func (e *PDFExporter) RenderCertificate(cert Certificate) ([]byte, error) {
	if cert.StudentName == "" {
		return nil, fmt.Errorf("certificate requires a student name")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetDrawColor(49, 46, 129)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 190, 277, "D")

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(30, 58, 138)
	pdf.CellFormat(0, 12, e.institution, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 15)
	pdf.CellFormat(0, 10, "OFFICIAL STUDENT CLEARANCE CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetTextColor(33, 33, 33)
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 7, "This confirms that the student named below has successfully completed and cleared requirements with all stipulated departments.", "", "C", false)
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, cert.StudentName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	if cert.StudentID != "" {
		pdf.CellFormat(0, 7, "Student ID: "+cert.StudentID, "", 1, "C", false, 0, "")
	}
	if cert.Department != "" {
		pdf.CellFormat(0, 7, "Department: "+cert.Department, "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 7, "Date of completion: "+cert.CompletedAt.Format("January 2, 2006"), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	if len(cert.Approvals) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(85, 8, "Department", "1", 0, "C", false, 0, "")
		pdf.CellFormat(85, 8, "Approved", "1", 1, "C", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, a := range cert.Approvals {
			pdf.CellFormat(85, 7, strings.ToUpper(a.Department), "1", 0, "", false, 0, "")
			approved := ""
			if !a.ApprovedAt.IsZero() {
				approved = a.ApprovedAt.Format("2006-01-02 15:04")
			}
			pdf.CellFormat(85, 7, approved, "1", 1, "", false, 0, "")
		}
	}

	if cert.RequestID != "" {
		pdf.SetY(270)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, "Reference: "+cert.RequestID, "", 1, "C", false, 0, "")
	}

	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
