package tasks

import (
	"context"
	"time"

	"github.com/smallnest/taskhub/bus"
)

// Repository 任务持久化接口
type Repository interface {
	// Create inserts t and sets its Version to 1.
	Create(ctx context.Context, t *Task) error
	// Get returns ErrNotFound for missing or soft-deleted tasks.
	Get(ctx context.Context, id string, withRelations bool) (*Task, error)
	// Find runs the filter engine.
	Find(ctx context.Context, q Query) (Page, error)
	// Save writes t if its Version still matches the stored row and
	// increments it; otherwise it returns ErrConflict.
	Save(ctx context.Context, t *Task) error
	// SaveAll saves every task in one transaction.
	SaveAll(ctx context.Context, ts []*Task) error
	SoftDelete(ctx context.Context, id string) error
	// MaxPosition returns the largest position among live tasks in the
	// project, or among tasks without a project when projectID is nil.
	MaxPosition(ctx context.Context, projectID *string) (int, error)
	// Stats aggregates the tasks viewerID created or is assigned to.
	Stats(ctx context.Context, viewerID, projectID string, now time.Time) (*Stats, error)
}

// Directory resolves users and projects.
type Directory interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetProject(ctx context.Context, id string) (*Project, error)
}

// Publisher 领域事件发布
type Publisher interface {
	Publish(ctx context.Context, evt *bus.Event) error
}

// OverdueFinder lists overdue tasks regardless of viewer, earliest due
// first. limit <= 0 returns all of them.
type OverdueFinder interface {
	FindOverdue(ctx context.Context, limit int) ([]Task, error)
}
