package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
	"github.com/victor297/student-clearance/pkg/export"
	"github.com/victor297/student-clearance/pkg/storage"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const exportPageSize = 100

type exportRequestLister interface {
	List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, int, error)
}

type exportStorage interface {
	Save(key string, data []byte) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string    `json:"-"`
	Token        string    `json:"token"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	Rows         int       `json:"rows"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExportDownload is an opened export file.
type ExportDownload struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
}

// ExportService renders request listings to files and serves them through
// signed links.
type ExportService struct {
	requests exportRequestLister
	storage  exportStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
	now      func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(requests exportRequestLister, store exportStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	return &ExportService{
		requests: requests,
		storage:  store,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Generate exports every request matching filter and returns a signed link.
func (s *ExportService) Generate(ctx context.Context, actor *models.JWTClaims, filter models.ClearanceFilter, format string) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "admin access required")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if filter.OverallStatus != nil && !filter.OverallStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}

	items, err := s.collect(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance requests")
	}
	dataset := requestDataset(items)

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Clearance Requests")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	key := fmt.Sprintf("clearance_requests_%s.%s", s.now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(key, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(format, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	s.logger.Info("export generated", zap.String("file", relPath), zap.Int("rows", len(items)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		Format:       format,
		Rows:         len(items),
		ExpiresAt:    expiresAt,
	}, nil
}

// Open validates a download token and opens the export it names.
func (s *ExportService) Open(ctx context.Context, token string) (*ExportDownload, error) {
	format, relPath, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	body, err := s.storage.Get(ctx, relPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	contentType := "text/csv"
	if format == ExportFormatPDF {
		contentType = "application/pdf"
	}
	return &ExportDownload{Body: body, Filename: path.Base(relPath), ContentType: contentType}, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) collect(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, error) {
	filter.StudentID = ""
	filter.PendingFor = nil
	filter.PageSize = exportPageSize
	var all []models.ClearanceRequestDetail
	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.requests.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < exportPageSize || len(all) >= total {
			return all, nil
		}
	}
}

func requestDataset(items []models.ClearanceRequestDetail) export.Dataset {
	headers := []string{"Request ID", "Student", "Student ID", "Email", "Department", "Overall Status", "Current Stage", "Submitted At", "Completed At"}
	for _, dept := range models.Sequence {
		headers = append(headers, strings.ToUpper(string(dept)))
	}
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		row := map[string]string{
			"Request ID":     item.ID,
			"Student":        strings.TrimSpace(item.FirstName + " " + item.LastName),
			"Email":          item.Email,
			"Department":     item.StudentSummary.Department,
			"Overall Status": string(item.OverallStatus),
			"Current Stage":  string(item.CurrentStage),
			"Submitted At":   item.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if item.MatricNo != nil {
			row["Student ID"] = *item.MatricNo
		}
		if item.CompletedAt != nil {
			row["Completed At"] = item.CompletedAt.UTC().Format(time.RFC3339)
		}
		for _, dept := range models.Sequence {
			row[strings.ToUpper(string(dept))] = string(item.Departments[dept].Status)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
