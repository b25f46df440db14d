package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, entry *models.AuditLog) {
	if audit == nil || entry == nil {
		return
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func auditPayload(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func userIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

func paginationFor(page, size, total int) *models.Pagination {
	page, size = models.NormalisePage(page, size)
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
