package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	applog "github.com/noah-isme/sma-attendance-api/pkg/logger"
	"github.com/noah-isme/sma-attendance-api/pkg/middleware/requestid"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// emitAudit records a best-effort audit entry; failures are logged only, with
// the request-scoped logger when ctx carries one.
func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, source string, log *models.AuditLog) {
	if audit == nil || log == nil {
		return
	}
	log.Source = source
	if reqID := requestid.FromContext(ctx); reqID != "" {
		log.RequestID = &reqID
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		applog.FromContext(ctx, logger).Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func auditValues(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func stringPtr(v string) *string {
	return &v
}
