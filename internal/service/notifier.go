package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/pkg/export"
	"github.com/victor297/student-clearance/pkg/jobs"
	"github.com/victor297/student-clearance/pkg/mailer"
)

//go:embed templates/*.html
var emailTemplateFS embed.FS

var emailTemplates = template.Must(template.ParseFS(emailTemplateFS, "templates/*.html"))

// JobTypeEmail is the job type consumed by EmailWorker.
const JobTypeEmail = "email"

// Email kinds used for metrics labels.
const (
	EmailKindNotice      = "notice"
	EmailKindCertificate = "certificate"
	EmailKindDigest      = "digest"
)

const (
	subjectNewRequest       = "New Clearance Request"
	subjectApprovalRequired = "Clearance Approval Required"
	subjectCertificate      = "Student Clearance Certificate - Approved"
	subjectDigest           = "Clearance Requests Awaiting Review"
)

// EmailJob is the payload queued for outbound email. Certificate is rendered
// to PDF by the worker and attached.
type EmailJob struct {
	Kind        string
	Message     mailer.Message
	Certificate *export.Certificate
}

// Effects are the side effects of a state change. Notifications are written in
// the same transaction as the change; Emails are queued after it commits.
type Effects struct {
	Notifications []models.Notification
	Emails        []EmailJob
}

func (e *Effects) merge(other Effects) {
	e.Notifications = append(e.Notifications, other.Notifications...)
	e.Emails = append(e.Emails, other.Emails...)
}

type officerLister interface {
	ListOfficers(ctx context.Context, dept models.Department) ([]models.User, error)
}

// NotifierConfig tunes officer lookups and email rendering.
type NotifierConfig struct {
	OfficerTTL time.Duration
	SenderName string
	PortalURL  string
}

// Notifier builds in-app notifications and emails for clearance events and
// hands emails to the background queue.
type Notifier struct {
	officers officerLister
	cache    *CacheService
	queue    jobs.Dispatcher
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      NotifierConfig
}

// NewNotifier constructs a Notifier. cache, queue and metrics may be nil.
func NewNotifier(officers officerLister, cache *CacheService, queue jobs.Dispatcher, metrics *MetricsService, logger *zap.Logger, cfg NotifierConfig) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SenderName == "" {
		cfg.SenderName = "Clearance System"
	}
	return &Notifier{officers: officers, cache: cache, queue: queue, metrics: metrics, logger: logger, cfg: cfg}
}

// Officers returns the officers of dept, served from cache when possible.
func (n *Notifier) Officers(ctx context.Context, dept models.Department) ([]models.User, error) {
	key := officerCacheKey(dept)
	var cached []models.User
	if hit, _ := n.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	officers, err := n.officers.ListOfficers(ctx, dept)
	if err != nil {
		return nil, fmt.Errorf("list %s officers: %w", dept, err)
	}
	_ = n.cache.Set(ctx, key, officers, n.cfg.OfficerTTL)
	return officers, nil
}

// RequestCreated notifies the first stage's officers of a new request.
func (n *Notifier) RequestCreated(ctx context.Context, student models.User, req models.ClearanceRequest) (Effects, error) {
	first := models.Sequence[0]
	officers, err := n.Officers(ctx, first)
	if err != nil {
		return Effects{}, err
	}
	name := student.FullName()
	var fx Effects
	for _, officer := range officers {
		fx.Notifications = append(fx.Notifications, note(officer.ID, req.ID, models.NotificationNewRequest,
			fmt.Sprintf("New clearance request from %s", name)))
		if email, ok := n.notice(officer.Email, subjectNewRequest,
			fmt.Sprintf("A new clearance request has been submitted by %s.", name)); ok {
			fx.Emails = append(fx.Emails, email)
		}
	}
	return fx, nil
}

// DecisionRecorded builds the effects of an officer decision: the student is
// always told, the next stage is asked to act, and a completed request gets
// its certificate.
func (n *Notifier) DecisionRecorded(ctx context.Context, student models.User, req models.ClearanceRequest, dept models.Department, status models.Status, next *models.Department, completed bool) (Effects, error) {
	var fx Effects
	if next != nil {
		officers, err := n.Officers(ctx, *next)
		if err != nil {
			return Effects{}, err
		}
		for _, officer := range officers {
			fx.Notifications = append(fx.Notifications, note(officer.ID, req.ID, models.NotificationApprovalRequired,
				fmt.Sprintf("Clearance request from %s requires your approval", student.FullName())))
			if email, ok := n.notice(officer.Email, subjectApprovalRequired,
				fmt.Sprintf("A clearance request requires your approval in the %s department.", *next)); ok {
				fx.Emails = append(fx.Emails, email)
			}
		}
	}

	if completed {
		fx.Notifications = append(fx.Notifications, note(student.ID, req.ID, models.NotificationClearanceStatus,
			"Your clearance request has been fully approved!"))
		if email, ok := n.certificate(student, req); ok {
			fx.Emails = append(fx.Emails, email)
		}
	}

	fx.Notifications = append(fx.Notifications, note(student.ID, req.ID, models.NotificationClearanceStatus,
		fmt.Sprintf("Your clearance request has been %s by %s department", status, dept)))
	return fx, nil
}

// DocumentsUploaded tells a department's officers that a reopened request has
// new documents waiting.
func (n *Notifier) DocumentsUploaded(ctx context.Context, student models.User, req models.ClearanceRequest, dept models.Department) (Effects, error) {
	officers, err := n.Officers(ctx, dept)
	if err != nil {
		return Effects{}, err
	}
	var fx Effects
	for _, officer := range officers {
		fx.Notifications = append(fx.Notifications, note(officer.ID, req.ID, models.NotificationNewRequest,
			fmt.Sprintf("%s has uploaded new documents for review", student.FullName())))
	}
	return fx, nil
}

// PendingDigest builds the reminder email for one officer.
func (n *Notifier) PendingDigest(officer models.User, dept models.Department, count int) (EmailJob, bool) {
	var body bytes.Buffer
	err := emailTemplates.ExecuteTemplate(&body, "digest.html", map[string]interface{}{
		"OfficerName": officer.FullName(),
		"Count":       count,
		"Department":  string(dept),
		"Sender":      n.cfg.SenderName,
	})
	if err != nil {
		n.logger.Warn("failed to render digest email", zap.Error(err))
		return EmailJob{}, false
	}
	return EmailJob{
		Kind: EmailKindDigest,
		Message: mailer.Message{
			To:      officer.Email,
			Subject: subjectDigest,
			Text:    fmt.Sprintf("%d clearance requests are waiting for the %s department.", count, dept),
			HTML:    body.String(),
		},
	}, true
}

// Dispatch queues emails. Failures are logged and counted, never returned.
func (n *Notifier) Dispatch(emails []EmailJob) {
	for _, email := range emails {
		if n.queue == nil {
			n.logger.Warn("email queue unavailable, dropping email", zap.String("to", email.Message.To), zap.String("kind", email.Kind))
			n.metrics.RecordEmail(email.Kind, fmt.Errorf("queue unavailable"))
			continue
		}
		if err := n.queue.Enqueue(jobs.Job{Type: JobTypeEmail, Payload: email}); err != nil {
			n.logger.Warn("failed to enqueue email", zap.String("to", email.Message.To), zap.String("kind", email.Kind), zap.Error(err))
			n.metrics.RecordEmail(email.Kind, err)
		}
	}
}

func (n *Notifier) notice(to, subject, text string) (EmailJob, bool) {
	if to == "" {
		return EmailJob{}, false
	}
	var body bytes.Buffer
	err := emailTemplates.ExecuteTemplate(&body, "notice.html", map[string]interface{}{
		"Body":   text,
		"Link":   n.cfg.PortalURL,
		"Sender": n.cfg.SenderName,
	})
	if err != nil {
		n.logger.Warn("failed to render notice email", zap.Error(err))
		return EmailJob{}, false
	}
	return EmailJob{
		Kind:    EmailKindNotice,
		Message: mailer.Message{To: to, Subject: subject, Text: text, HTML: body.String()},
	}, true
}

func (n *Notifier) certificate(student models.User, req models.ClearanceRequest) (EmailJob, bool) {
	if student.Email == "" {
		return EmailJob{}, false
	}
	cert := certificateFor(student, req)
	studentID := ""
	if student.StudentID != nil {
		studentID = *student.StudentID
	}
	var body bytes.Buffer
	err := emailTemplates.ExecuteTemplate(&body, "certificate.html", map[string]interface{}{
		"StudentName": cert.StudentName,
		"StudentID":   studentID,
		"CompletedOn": cert.CompletedAt.Format("January 2, 2006"),
	})
	if err != nil {
		n.logger.Warn("failed to render certificate email", zap.Error(err))
		return EmailJob{}, false
	}
	return EmailJob{
		Kind: EmailKindCertificate,
		Message: mailer.Message{
			To:      student.Email,
			Subject: subjectCertificate,
			Text:    fmt.Sprintf("Dear %s, your clearance has been fully approved. Your certificate is attached.", cert.StudentName),
			HTML:    body.String(),
		},
		Certificate: &cert,
	}, true
}

func note(userID, requestID string, kind models.NotificationType, message string) models.Notification {
	related := requestID
	return models.Notification{
		UserID:         userID,
		Message:        message,
		Type:           kind,
		Status:         models.NotificationUnread,
		RelatedRequest: &related,
	}
}

func certificateFor(student models.User, req models.ClearanceRequest) export.Certificate {
	completed := time.Now().UTC()
	if req.CompletedAt != nil {
		completed = *req.CompletedAt
	}
	cert := export.Certificate{
		StudentName: student.FullName(),
		Department:  student.Department,
		RequestID:   req.ID,
		CompletedAt: completed,
	}
	if student.StudentID != nil {
		cert.StudentID = *student.StudentID
	}
	for _, dept := range models.Sequence {
		rec := req.Departments[dept]
		approval := export.CertificateApproval{Department: string(dept)}
		if rec.Timestamp != nil {
			approval.ApprovedAt = *rec.Timestamp
		}
		cert.Approvals = append(cert.Approvals, approval)
	}
	return cert
}
