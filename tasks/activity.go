package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// Activity is one append-only audit entry for a task.
type Activity struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"task_id"`
	UserID      string          `json:"user_id"`
	Type        ActivityType    `json:"type"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Meta reads a value out of the metadata document, e.g. Meta("newStatus")
// or Meta("changes.title.new").
func (a *Activity) Meta(path string) gjson.Result {
	if len(a.Metadata) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(a.Metadata, path)
}

// ActivityLog 审计日志存储
type ActivityLog interface {
	Append(ctx context.Context, a *Activity) error
	// List returns entries for a task, newest first.
	List(ctx context.Context, taskID string) ([]Activity, error)
	Count(ctx context.Context, taskID string) (int64, error)
}
