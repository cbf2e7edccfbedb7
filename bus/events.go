package bus

import (
	"time"
)

// 领域事件名
const (
	TaskCreated         = "task.created"
	TaskUpdated         = "task.updated"
	TaskDeleted         = "task.deleted"
	TaskStatusChanged   = "task.status_changed"
	TaskPriorityChanged = "task.priority_changed"
	TaskAssigned        = "task.assigned"
	TaskUnassigned      = "task.unassigned"
	TaskTimeLogged      = "task.time_logged"
	TaskBlocked         = "task.blocked"
	TaskUnblocked       = "task.unblocked"
	TaskArchived        = "task.archived"
	TaskUnarchived      = "task.unarchived"
	TaskBulkUpdated     = "task.bulk_updated"
	TaskOverdue         = "task.overdue"
)

// Event 领域事件
type Event struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`               // task.created, task.status_changed ...
	ActorID   string                 `json:"actor_id,omitempty"` // 触发者，调度器产生的事件为空
	TaskIDs   []string               `json:"task_ids"`
	Payload   interface{}            `json:"payload,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// IsSystemEvent 判断是否为系统事件（没有用户触发者）
func (e *Event) IsSystemEvent() bool {
	return e.ActorID == ""
}
