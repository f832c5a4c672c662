package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/smeta-erp/smeta-erp/internal/jobs"
)

// Propagator runs the template grant propagation.
type Propagator interface {
	Propagate(ctx context.Context, templateRoleID int64) error
}

// TemplateLookup resolves the global admin template's role id.
type TemplateLookup interface {
	GlobalAdminRoleID(ctx context.Context) (int64, error)
}

// TemplateSyncJob is the nightly reconciliation backstop: tenants that missed
// the synchronous fan-out converge on the template the next time it runs.
type TemplateSyncJob struct {
	propagator Propagator
	lookup     TemplateLookup
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
}

// NewTemplateSyncJob constructs the job handler.
func NewTemplateSyncJob(propagator Propagator, lookup TemplateLookup, logger *slog.Logger, metrics *jobmetrics.Metrics) *TemplateSyncJob {
	return &TemplateSyncJob{propagator: propagator, lookup: lookup, logger: logger, metrics: metrics}
}

// Handle processes TaskRoleTemplateSync tasks. Per-tenant failures surface as
// a joined error so asynq retries the whole propagation; already-synced
// tenants are idempotent under the retry.
func (j *TemplateSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("role_template_sync")

	var payload TemplateSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger.ErrorContext(ctx, "template sync payload", slog.Any("error", err))
		_ = tracker.End(err)
		return asynq.SkipRetry
	}

	roleID := payload.TemplateRoleID
	if roleID == 0 {
		id, err := j.lookup.GlobalAdminRoleID(ctx)
		if err != nil {
			return tracker.End(err)
		}
		roleID = id
	}

	if err := j.propagator.Propagate(ctx, roleID); err != nil {
		j.logger.ErrorContext(ctx, "template sync", slog.Int64("template_role_id", roleID), slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
