package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/taskhub/bus"
	"github.com/smallnest/taskhub/internal/logger"
	"github.com/smallnest/taskhub/tasks"
	"go.uber.org/zap"
)

// OverdueJobID is the scheduler id of the overdue sweep.
const OverdueJobID = "overdue-sweep"

// OverdueSweeper publishes one task.overdue event per overdue task. A task
// is announced once per due date; moving the due date or finishing the
// task and letting it slip again re-arms it. The limit caps how many events
// one pass publishes; tasks over the cap are announced on later passes.
type OverdueSweeper struct {
	finder    tasks.OverdueFinder
	publisher tasks.Publisher
	limit     int
	now       func() time.Time

	mu        sync.Mutex
	announced map[string]time.Time
}

// NewOverdueSweeper 创建逾期扫描器，limit 为每轮最多发布的事件数，<= 0 表示不限制
func NewOverdueSweeper(finder tasks.OverdueFinder, publisher tasks.Publisher, limit int) *OverdueSweeper {
	return &OverdueSweeper{
		finder:    finder,
		publisher: publisher,
		limit:     limit,
		now:       time.Now,
		announced: make(map[string]time.Time),
	}
}

// Sweep runs one pass and reports how many events were published.
func (o *OverdueSweeper) Sweep(ctx context.Context) (int, error) {
	// the whole overdue set is needed to know which tasks are still pending
	overdue, err := o.finder.FindOverdue(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue tasks: %w", err)
	}

	now := o.now().UTC()
	current := make(map[string]time.Time, len(overdue))
	published, pending := 0, 0

	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range overdue {
		t := overdue[i]
		if t.DueDate == nil {
			continue
		}
		due := t.DueDate.UTC()
		if prev, ok := o.announced[t.ID]; ok && prev.Equal(due) {
			current[t.ID] = due
			continue
		}
		if o.limit > 0 && published >= o.limit {
			pending++
			continue
		}

		evt := &bus.Event{
			Name:    bus.TaskOverdue,
			TaskIDs: []string{t.ID},
			Payload: t,
			Metadata: map[string]interface{}{
				"dueDate":    due,
				"overdueBy":  now.Sub(due).Round(time.Minute).String(),
				"assigneeId": t.AssigneeID,
				"creatorId":  t.CreatorID,
			},
			Timestamp: now,
		}
		if err := o.publisher.Publish(ctx, evt); err != nil {
			// left out of current so the next pass retries
			logger.Warn("Failed to publish overdue event",
				zap.String("task_id", t.ID),
				zap.Error(err))
			continue
		}
		current[t.ID] = due
		published++
	}
	// tasks no longer overdue drop out and are re-armed
	o.announced = current

	if published > 0 || pending > 0 {
		logger.Info("Overdue sweep published events",
			zap.Int("overdue", len(overdue)),
			zap.Int("published", published),
			zap.Int("pending", pending))
	}
	return published, nil
}

// Job wraps the sweeper for a Scheduler.
func (o *OverdueSweeper) Job(spec string) *Job {
	return &Job{
		ID:       OverdueJobID,
		Name:     "Overdue task sweep",
		Schedule: spec,
		Enabled:  true,
		Run: func(ctx context.Context) error {
			_, err := o.Sweep(ctx)
			return err
		},
	}
}
