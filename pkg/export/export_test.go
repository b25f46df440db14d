package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"student", "status"},
		Rows: []map[string]string{
			{"student": "Ada Obi", "status": "pending"},
			{"student": "Chidi, Eze"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "student,status\nAda Obi,pending\n\"Chidi, Eze\",\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRenderCertificate(t *testing.T) {
	out, err := NewPDFExporter("").RenderCertificate(Certificate{
		StudentName: "Ada Obi",
		StudentID:   "CSC/2019/001",
		Department:  "Computer Science",
		RequestID:   "req-1",
		CompletedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Approvals:   []CertificateApproval{{Department: "hod", ApprovedAt: time.Now()}},
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter("").RenderCertificate(Certificate{})
	require.Error(t, err)
}

func TestPDFExporterRenderTable(t *testing.T) {
	out, err := NewPDFExporter("").Render(Dataset{Headers: []string{"a"}, Rows: []map[string]string{{"a": "1"}}}, "requests")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
