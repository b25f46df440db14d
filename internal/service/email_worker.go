package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/victor297/student-clearance/pkg/export"
	"github.com/victor297/student-clearance/pkg/jobs"
	"github.com/victor297/student-clearance/pkg/mailer"
)

type certificateRenderer interface {
	RenderCertificate(cert export.Certificate) ([]byte, error)
}

// EmailWorker delivers queued EmailJob payloads.
type EmailWorker struct {
	sender   mailer.Sender
	renderer certificateRenderer
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewEmailWorker constructs the worker.
func NewEmailWorker(sender mailer.Sender, renderer certificateRenderer, metrics *MetricsService, logger *zap.Logger) *EmailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailWorker{sender: sender, renderer: renderer, metrics: metrics, logger: logger}
}

// Handle is a jobs.Handler. Returning an error lets the queue retry.
func (w *EmailWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(EmailJob)
	if !ok {
		w.logger.Error("unexpected email job payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}

	msg := payload.Message
	if payload.Certificate != nil && w.renderer != nil {
		pdf, err := w.renderer.RenderCertificate(*payload.Certificate)
		if err != nil {
			w.metrics.RecordEmail(payload.Kind, err)
			return fmt.Errorf("render certificate: %w", err)
		}
		msg.Attachments = append(msg.Attachments, mailer.Attachment{
			Filename:    certificateFilename(payload.Certificate.RequestID),
			ContentType: "application/pdf",
			Content:     pdf,
		})
	}

	if err := msg.Validate(); err != nil {
		w.logger.Warn("dropping invalid email", zap.String("job_id", job.ID), zap.Error(err))
		w.metrics.RecordEmail(payload.Kind, err)
		return nil
	}

	err := w.sender.Send(ctx, msg)
	w.metrics.RecordEmail(payload.Kind, err)
	if err != nil {
		return fmt.Errorf("send %s email: %w", payload.Kind, err)
	}
	w.logger.Debug("email sent", zap.String("job_id", job.ID), zap.String("kind", payload.Kind), zap.String("to", msg.To))
	return nil
}

func certificateFilename(requestID string) string {
	return fmt.Sprintf("clearance-certificate-%s.pdf", requestID)
}
