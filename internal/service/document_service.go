package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/repository"
	"github.com/victor297/student-clearance/internal/workflow"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
	"github.com/victor297/student-clearance/pkg/storage"
)

type documentStore interface {
	CreateBatch(ctx context.Context, docs []models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
}

type documentRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (int, error)
}

type documentSigner interface {
	Generate(ref, key string) (string, time.Time, error)
	Parse(token string) (ref, key string, err error)
}

// DocumentServiceConfig bounds uploads and shapes generated URLs.
type DocumentServiceConfig struct {
	MaxFileSize       int64
	MaxFiles          int
	AllowedMIMEs      []string
	AllowedExtensions []string
	PublicBaseURL     string
	APIPrefix         string
}

// DocumentDownload is an open stored document.
type DocumentDownload struct {
	Body     io.ReadCloser
	Filename string
	MimeType string
	Size     int64
}

// DocumentService stores student uploads and applies upload driven recovery
// of rejected requests.
type DocumentService struct {
	docs     documentStore
	requests documentRequestStore
	users    userReader
	store    storage.ObjectStore
	signer   documentSigner
	notifier *Notifier
	audit    auditLogger
	cache    cacheInvalidator
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      DocumentServiceConfig
	extSet   map[string]struct{}
	now      func() time.Time
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(docs documentStore, requests documentRequestStore, users userReader, store storage.ObjectStore, signer documentSigner, notifier *Notifier, audit auditLogger, cache cacheInvalidator, metrics *MetricsService, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/jpeg", "image/png", "application/pdf"}
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".pdf"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	extSet := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extSet[ext] = struct{}{}
	}
	return &DocumentService{
		docs:     docs,
		requests: requests,
		users:    users,
		store:    store,
		signer:   signer,
		notifier: notifier,
		audit:    audit,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		extSet:   extSet,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores files for one department of the caller's request. On a
// rejected request the department record is reset to pending and, when that
// department caused the rejection, the request is reopened at its stage.
func (s *DocumentService) Upload(ctx context.Context, actor *models.JWTClaims, requestID, rawDept string, files []models.UploadedFile) (*models.UploadResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "only students can upload documents")
	}
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one file is required")
	}
	if len(files) > s.cfg.MaxFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files per upload", s.cfg.MaxFiles))
	}
	dept, err := models.ParseDepartment(strings.ToLower(strings.TrimSpace(rawDept)))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	current, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if current.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only upload to your own requests")
	}

	if err := workflow.Check(*current); err != nil {
		s.logger.Error("stored clearance request is inconsistent", zap.String("request_id", current.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "clearance request is inconsistent")
	}

	now := s.now()
	outcome, err := workflow.ReopenOnUpload(*current, dept, actor.UserID, now)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(files))
	stored := make([]string, 0, len(files))
	for _, file := range files {
		doc, err := s.storeFile(ctx, current.ID, actor.UserID, dept, file, now)
		if err != nil {
			s.discard(stored)
			return nil, err
		}
		stored = append(stored, doc.StorageKey)
		docs = append(docs, *doc)
	}

	result := &models.UploadResult{Documents: docs, Reopened: outcome.Reopened}
	if !outcome.Changed {
		if err := s.docs.CreateBatch(ctx, docs); err != nil {
			s.discard(stored)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save documents")
		}
		result.Request = current
		s.auditUpload(ctx, actor, current.ID, dept, len(docs), false)
		return result, nil
	}

	student, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		s.discard(stored)
		return nil, err
	}
	fx, err := s.notifier.DocumentsUploaded(ctx, *student, outcome.Request, dept)
	if err != nil {
		s.discard(stored)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve officers")
	}

	history := outcome.History
	version, err := s.requests.ApplyTransition(ctx, repository.TransitionParams{
		Request:         outcome.Request,
		ExpectedVersion: current.Version,
		History:         &history,
		Documents:       docs,
		Notifications:   fx.Notifications,
	})
	if err != nil {
		s.discard(stored)
		switch {
		case errors.Is(err, repository.ErrStaleVersion):
			s.metrics.RecordTransition(TransitionConflict, dept)
			return nil, appErrors.ErrConcurrentUpdate
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.ErrPendingRequestExists
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save documents")
	}
	outcome.Request.Version = version
	result.Request = &outcome.Request

	s.notifier.Dispatch(fx.Emails)
	if outcome.Reopened {
		s.metrics.RecordTransition(TransitionReopened, dept)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
			s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
		}
	}
	s.auditUpload(ctx, actor, current.ID, dept, len(docs), outcome.Reopened)
	return result, nil
}

// ListByRequest returns a request's documents. Officers may narrow the list
// to one department.
func (s *DocumentService) ListByRequest(ctx context.Context, actor *models.JWTClaims, requestID, rawDept string) ([]models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if actor.Role == models.RoleStudent && req.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only view your own documents")
	}

	filter := models.DocumentFilter{RequestID: requestID}
	if raw := strings.TrimSpace(rawDept); raw != "" && actor.Role != models.RoleStudent {
		dept, err := models.ParseDepartment(strings.ToLower(raw))
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		filter.Department = &dept
	}
	return s.list(ctx, filter)
}

// ListByDepartment returns every document uploaded for a department. Officers
// only see their own department.
func (s *DocumentService) ListByDepartment(ctx context.Context, actor *models.JWTClaims, rawDept string) ([]models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	dept, err := models.ParseDepartment(strings.ToLower(strings.TrimSpace(rawDept)))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleOfficer:
		officer, err := s.loadUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if !officer.IsOfficerOf(dept) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "officers can only view their own department")
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	return s.list(ctx, models.DocumentFilter{Department: &dept})
}

// Link returns a signed, expiring download link for a document.
func (s *DocumentService) Link(ctx context.Context, actor *models.JWTClaims, id string) (*models.DocumentLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && doc.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only access your own documents")
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.StorageKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &models.DocumentLink{
		URL:       fmt.Sprintf("%s/documents/%s/download?token=%s", base, doc.ID, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Download validates a signed token and opens the stored object.
func (s *DocumentService) Download(ctx context.Context, id, token string) (*DocumentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	ref, key, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	doc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref != doc.ID || key != doc.StorageKey {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	body, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document file missing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return &DocumentDownload{Body: body, Filename: doc.OriginalName, MimeType: doc.MimeType, Size: doc.FileSize}, nil
}

func (s *DocumentService) storeFile(ctx context.Context, requestID, studentID string, dept models.Department, file models.UploadedFile, now time.Time) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(file.Name))
	if _, ok := s.extSet[ext]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: only jpeg, jpg, png and pdf files are allowed", file.Name))
	}
	if file.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: empty file", file.Name))
	}
	if file.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: file exceeds %d bytes limit", file.Name, s.cfg.MaxFileSize))
	}
	if file.Open == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: file reader missing", file.Name))
	}

	content, err := file.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload")
	}
	defer content.Close()

	detected, err := mimetype.DetectReader(content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if !s.mimeAllowed(detected) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: content type %s not allowed", file.Name, detected.String()))
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}

	id := uuid.NewString()
	fileName := id + ext
	key := fmt.Sprintf("requests/%s/%s/%s", requestID, dept, fileName)
	mimeType := baseMIME(detected.String())
	if err := s.store.Put(ctx, key, content, file.Size, mimeType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	return &models.Document{
		ID:           id,
		RequestID:    requestID,
		StudentID:    studentID,
		Department:   dept,
		StorageKey:   key,
		FileURL:      s.publicURL(key),
		FileName:     fileName,
		OriginalName: file.Name,
		FileSize:     file.Size,
		MimeType:     mimeType,
		CreatedAt:    now,
	}, nil
}

func (s *DocumentService) mimeAllowed(detected *mimetype.MIME) bool {
	for _, allowed := range s.cfg.AllowedMIMEs {
		if detected.Is(strings.TrimSpace(allowed)) {
			return true
		}
	}
	return false
}

func baseMIME(raw string) string {
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func (s *DocumentService) publicURL(key string) string {
	if s.cfg.PublicBaseURL == "" {
		return key
	}
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
}

// discard removes objects written before a failed upload. Errors are logged.
func (s *DocumentService) discard(keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(context.Background(), key); err != nil {
			s.logger.Warn("failed to remove orphaned document", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *DocumentService) get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) list(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	docs, err := s.docs.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

func (s *DocumentService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *DocumentService) auditUpload(ctx context.Context, actor *models.JWTClaims, requestID string, dept models.Department, count int, reopened bool) {
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionDocumentUpload,
		Resource:   "clearance_requests",
		ResourceID: &requestID,
		NewValues:  auditPayload(map[string]interface{}{"department": dept, "files": count, "reopened": reopened}),
	})
}
