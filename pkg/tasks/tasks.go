// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// IngestTask represents an asynchronous reindex job for one record kind.
type IngestTask struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Recreate    bool      `json:"recreate"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewIngestTask 创建一个带唯一 ID 的入库任务。
func NewIngestTask(kind string, recreate bool) IngestTask {
	return IngestTask{
		ID:          uuid.NewString(),
		Kind:        kind,
		Recreate:    recreate,
		RequestedAt: time.Now().UTC(),
	}
}
