package storage

import (
	"context"
	"fmt"

	"github.com/smallnest/taskhub/tasks"
	"gorm.io/gorm"
)

// ActivityRepository implements tasks.ActivityLog. Rows are only ever
// inserted.
type ActivityRepository struct {
	db *gorm.DB
}

var _ tasks.ActivityLog = (*ActivityRepository)(nil)

// Append 追加一条审计记录
func (r *ActivityRepository) Append(ctx context.Context, a *tasks.Activity) error {
	rec := &activityRecord{
		ID:          a.ID,
		TaskID:      a.TaskID,
		UserID:      a.UserID,
		Type:        string(a.Type),
		Description: a.Description,
		Metadata:    string(a.Metadata),
		CreatedAt:   a.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// List returns the activities of a task, newest first.
func (r *ActivityRepository) List(ctx context.Context, taskID string) ([]tasks.Activity, error) {
	var records []activityRecord
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at DESC, seq DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	out := make([]tasks.Activity, 0, len(records))
	for i := range records {
		out = append(out, records[i].toActivity())
	}
	return out, nil
}

// Count 统计某任务的审计记录数
func (r *ActivityRepository) Count(ctx context.Context, taskID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&activityRecord{}).Where("task_id = ?", taskID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return n, nil
}
