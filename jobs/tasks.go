package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStorageIntegrity verifies bag arithmetic across storage records.
	TaskStorageIntegrity = "storage:integrity"
	// TaskDuesScan flags records approaching or past the rent tier boundary.
	TaskDuesScan = "billing:dues_scan"
)

// DuesScanPayload parameterises the dues scan.
type DuesScanPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewStorageIntegrityTask constructs an integrity scan task.
func NewStorageIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskStorageIntegrity, nil)
}

// NewDuesScanTask constructs a dues scan task.
func NewDuesScanTask(payload DuesScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDuesScan, data), nil
}
