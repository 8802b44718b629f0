package router

import (
	"context"
	"time"

	"gitnotify/internal/dispatch"
	"gitnotify/internal/metrics"
	"gitnotify/internal/storage"
	logx "gitnotify/pkg/logx"
)

// AuditRecorder feeds toggle attempts into the audit trail and metrics.
// Store may be nil.
type AuditRecorder struct {
	Store   storage.Store
	Metrics *metrics.Metrics
	Log     logx.Logger
}

func (r AuditRecorder) RecordToggle(ctx context.Context, rec dispatch.ToggleRecord) {
	r.Metrics.Toggle(rec.Scope, rec.OK, rec.Duration)
	if r.Store == nil {
		return
	}
	e := storage.AuditEntry{
		At:      rec.At,
		ActorID: rec.ActorID,
		ChatID:  rec.ChatID,
		Scope:   rec.Scope,
		Path:    rec.Path,
		OK:      rec.OK,
		TookMS:  rec.Duration.Milliseconds(),
	}
	if rec.Err != nil {
		e.Error = rec.Err.Error()
	}
	// The audit write must not hold up the menu for long.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.Store.AppendAudit(cctx, e); err != nil {
		r.Log.Warn("audit append failed", logx.String("path", rec.Path), logx.Err(err))
	}
}
