package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/victor297/student-clearance/pkg/export"
	"github.com/victor297/student-clearance/pkg/jobs"
	"github.com/victor297/student-clearance/pkg/mailer"
)

type senderStub struct {
	sent []mailer.Message
	err  error
}

func (s *senderStub) Send(_ context.Context, msg mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type rendererStub struct {
	err error
}

func (r rendererStub) RenderCertificate(export.Certificate) ([]byte, error) {
	return []byte("%PDF"), r.err
}

func emailJob(payload EmailJob) jobs.Job {
	return jobs.Job{ID: "job-1", Type: JobTypeEmail, Payload: payload}
}

func TestEmailWorkerAttachesCertificate(t *testing.T) {
	sender := &senderStub{}
	worker := NewEmailWorker(sender, rendererStub{}, nil, zap.NewNop())

	err := worker.Handle(context.Background(), emailJob(EmailJob{
		Kind:        EmailKindCertificate,
		Message:     mailer.Message{To: "ada@uni.edu", Subject: "Student Clearance Certificate - Approved", HTML: "<p>ok</p>"},
		Certificate: &export.Certificate{RequestID: "req-1"},
	}))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Len(t, sender.sent[0].Attachments, 1)
	assert.Equal(t, "clearance-certificate-req-1.pdf", sender.sent[0].Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF"), sender.sent[0].Attachments[0].Content)
}

func TestEmailWorkerRetriesProviderFailures(t *testing.T) {
	worker := NewEmailWorker(&senderStub{err: errors.New("provider down")}, nil, nil, zap.NewNop())

	err := worker.Handle(context.Background(), emailJob(EmailJob{
		Kind:    EmailKindNotice,
		Message: mailer.Message{To: "ada@uni.edu", Subject: "Hello", Text: "hi"},
	}))
	assert.Error(t, err)
}

func TestEmailWorkerDropsInvalidMessages(t *testing.T) {
	sender := &senderStub{}
	worker := NewEmailWorker(sender, nil, nil, zap.NewNop())

	assert.NoError(t, worker.Handle(context.Background(), emailJob(EmailJob{Kind: EmailKindNotice, Message: mailer.Message{To: "not-an-address"}})))
	assert.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-2", Payload: "garbage"}))
	assert.Empty(t, sender.sent)
}

func TestEmailWorkerRenderFailure(t *testing.T) {
	worker := NewEmailWorker(&senderStub{}, rendererStub{err: errors.New("boom")}, nil, zap.NewNop())

	err := worker.Handle(context.Background(), emailJob(EmailJob{
		Kind:        EmailKindCertificate,
		Message:     mailer.Message{To: "ada@uni.edu", Subject: "Cert"},
		Certificate: &export.Certificate{RequestID: "req-1"},
	}))
	assert.Error(t, err)
}
