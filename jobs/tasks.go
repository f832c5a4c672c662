package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleTemplateSync re-propagates the admin template's grants to every
	// tenant. A zero TemplateRoleID means "resolve the template by key".
	TaskRoleTemplateSync = "roles:template_sync"
)

// TemplateSyncPayload identifies the template role to propagate.
type TemplateSyncPayload struct {
	TemplateRoleID int64 `json:"template_role_id"`
}

// NewTemplateSyncTask constructs an Asynq task.
func NewTemplateSyncTask(payload TemplateSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleTemplateSync, data), nil
}
