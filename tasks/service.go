package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/taskhub/bus"
	"github.com/smallnest/taskhub/cache"
	"github.com/smallnest/taskhub/internal/logger"
	"go.uber.org/zap"
)

// DefaultOperationTimeout bounds every service call unless Deps.Timeout is set.
const DefaultOperationTimeout = 10 * time.Second

// Deps 服务依赖
type Deps struct {
	Repo       Repository
	Activities ActivityLog
	Directory  Directory
	// Cache may be nil or wrap a nil store; reads then always go to Repo.
	Cache *cache.Resilient
	// Events may be nil; events are then dropped.
	Events  Publisher
	Clock   func() time.Time
	Timeout time.Duration
}

// Service coordinates validation, persistence, activity logging, event
// emission and cache invalidation for every task operation.
type Service struct {
	repo       Repository
	activities ActivityLog
	directory  Directory
	cache      *cache.Resilient
	events     Publisher
	clock      func() time.Time
	timeout    time.Duration
}

// NewService 创建任务服务
func NewService(d Deps) (*Service, error) {
	if d.Repo == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if d.Activities == nil {
		return nil, fmt.Errorf("activity log is required")
	}
	if d.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if d.Cache == nil {
		d.Cache = cache.NewResilient(nil, cache.DefaultRetryPolicy())
	}
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultOperationTimeout
	}
	return &Service{
		repo:       d.Repo,
		activities: d.Activities,
		directory:  d.Directory,
		cache:      d.Cache,
		events:     d.Events,
		clock:      d.Clock,
		timeout:    d.Timeout,
	}, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *bus.Event) error { return nil }

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) begin(ctx context.Context, p Principal) (context.Context, context.CancelFunc, error) {
	if err := p.validate(); err != nil {
		return ctx, func() {}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return ctx, cancel, nil
}

// Get returns a single task with its relations.
func (s *Service) Get(ctx context.Context, p Principal, id string) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}

	key := taskKey(id, p.ID)
	var cached Task
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	t, err := s.load(ctx, p, id, true)
	if err != nil {
		return nil, err
	}
	cache.SetJSON(ctx, s.cache, key, t, kindTask.ttl)
	return t, nil
}

// List returns the caller's tasks: those they created or are assigned to,
// or every task for an admin.
func (s *Service) List(ctx context.Context, p Principal, f Filter, opts ListOptions) (Page, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return Page{}, err
	}
	opts = opts.Normalize()
	return s.cachedFind(ctx, taskListKey(p, f, opts), kindTaskList.ttl, Query{
		Filter:       f,
		ListOptions:  opts,
		Viewer:       p,
		Unrestricted: p.IsAdmin(),
		Now:          s.now(),
	})
}

// Overdue lists the caller's overdue tasks, earliest due date first unless
// opts says otherwise.
func (s *Service) Overdue(ctx context.Context, p Principal, opts ListOptions) (Page, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return Page{}, err
	}
	if opts.SortBy == "" {
		opts.SortBy, opts.SortOrder = SortDueDate, SortAsc
	}
	opts = opts.Normalize()
	return s.cachedFind(ctx, overdueKey(p, opts), kindOverdue.ttl, Query{
		Filter:       Filter{Overdue: true},
		ListOptions:  opts,
		Viewer:       p,
		Unrestricted: p.IsAdmin(),
		Now:          s.now(),
	})
}

// ProjectTasks lists the tasks of one project. Admins, project managers and
// the project owner see every task; anyone else only their own.
func (s *Service) ProjectTasks(ctx context.Context, p Principal, projectID string, f Filter, opts ListOptions) (Page, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return Page{}, err
	}
	if projectID == "" {
		return Page{}, invalidField("project_id", "required", nil)
	}
	proj, err := s.directory.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Page{}, notFound("project", projectID)
		}
		return Page{}, s.storageFailure("get_project", p, "", err)
	}

	unrestricted := p.IsAdmin() || p.Role == RoleProjectManager || proj.OwnerID == p.ID
	f.ProjectID = projectID
	opts = opts.Normalize()
	return s.cachedFind(ctx, projectTasksKey(projectID, p, unrestricted, f, opts), kindProjectTasks.ttl, Query{
		Filter:       f,
		ListOptions:  opts,
		Viewer:       p,
		Unrestricted: unrestricted,
		Now:          s.now(),
	})
}

func (s *Service) cachedFind(ctx context.Context, key string, ttl time.Duration, q Query) (Page, error) {
	var cached Page
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return cached, nil
	}
	page, err := s.repo.Find(ctx, q)
	if err != nil {
		return Page{}, s.storageFailure("find", q.Viewer, "", err)
	}
	cache.SetJSON(ctx, s.cache, key, page, ttl)
	return page, nil
}

// Stats aggregates the caller's tasks, optionally within one project.
func (s *Service) Stats(ctx context.Context, p Principal, projectID string) (*Stats, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}

	key := statsKey(p.ID, projectID)
	var cached Stats
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}
	st, err := s.repo.Stats(ctx, p.ID, projectID, s.now())
	if err != nil {
		return nil, s.storageFailure("stats", p, "", err)
	}
	cache.SetJSON(ctx, s.cache, key, st, kindStats.ttl)
	return st, nil
}

// Activities returns the audit trail of a task, newest first.
func (s *Service) Activities(ctx context.Context, p Principal, id string) ([]Activity, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, p, id, false); err != nil {
		return nil, err
	}
	list, err := s.activities.List(ctx, id)
	if err != nil {
		return nil, s.storageFailure("list_activities", p, id, err)
	}
	return list, nil
}

// ActivityCount reports how many audit entries a task has.
func (s *Service) ActivityCount(ctx context.Context, p Principal, id string) (int64, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return 0, err
	}
	if _, err := s.load(ctx, p, id, false); err != nil {
		return 0, err
	}
	n, err := s.activities.Count(ctx, id)
	if err != nil {
		return 0, s.storageFailure("count_activities", p, id, err)
	}
	return n, nil
}

// FindOverdue lists every overdue task without viewer scoping. Used by
// the scheduler, never by user-facing calls.
func (s *Service) FindOverdue(ctx context.Context, limit int) ([]Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := ListOptions{Page: 1, Limit: MaxLimit, SortBy: SortDueDate, SortOrder: SortAsc}
	var out []Task
	for {
		page, err := s.repo.Find(ctx, Query{
			Filter:       Filter{Overdue: true},
			ListOptions:  opts,
			Unrestricted: true,
			Now:          s.now(),
		})
		if err != nil {
			return out, fmt.Errorf("failed to find overdue tasks: %w", err)
		}
		out = append(out, page.Items...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if !page.HasNext {
			return out, nil
		}
		opts.Page++
	}
}

// load fetches a task and hides it behind ErrNotFound when p may not see it.
func (s *Service) load(ctx context.Context, p Principal, id string, withRelations bool) (*Task, error) {
	if id == "" {
		return nil, invalidField("id", "required", nil)
	}
	t, err := s.repo.Get(ctx, id, withRelations)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("task", id)
		}
		return nil, s.storageFailure("get", p, id, err)
	}
	ok, err := s.canAccess(ctx, p, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("task", id)
	}
	return t, nil
}

func (s *Service) canAccess(ctx context.Context, p Principal, t *Task) (bool, error) {
	if p.canSee(t) {
		return true, nil
	}
	if t.ProjectID == nil {
		return false, nil
	}
	proj, err := s.directory.GetProject(ctx, *t.ProjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, s.storageFailure("get_project", p, t.ID, err)
	}
	return proj.OwnerID == p.ID, nil
}

func (s *Service) requireUser(ctx context.Context, p Principal, id string) error {
	if _, err := s.directory.GetUser(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("user", id)
		}
		return s.storageFailure("get_user", p, "", err)
	}
	return nil
}

func (s *Service) requireProject(ctx context.Context, p Principal, id string) error {
	if _, err := s.directory.GetProject(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("project", id)
		}
		return s.storageFailure("get_project", p, "", err)
	}
	return nil
}

// storageFailure logs unexpected persistence errors with their context.
// Domain errors pass through untouched.
func (s *Service) storageFailure(op string, p Principal, taskID string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	logger.Error("Task storage operation failed",
		zap.String("operation", op),
		zap.String("actor", p.ID),
		zap.String("task_id", taskID),
		zap.Error(err))
	return fmt.Errorf("failed to %s: %w", op, err)
}

// logActivity appends an audit entry. Failures are logged and swallowed so
// they never undo the write that was just persisted.
func (s *Service) logActivity(ctx context.Context, taskID, userID string, typ ActivityType, desc string, meta map[string]interface{}) {
	a := &Activity{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		UserID:      userID,
		Type:        typ,
		Description: desc,
		CreatedAt:   s.now(),
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			logger.Warn("Failed to encode activity metadata",
				zap.String("task_id", taskID),
				zap.String("type", string(typ)),
				zap.Error(err))
		} else {
			a.Metadata = raw
		}
	}
	if err := s.activities.Append(ctx, a); err != nil {
		logger.Error("Failed to log task activity",
			zap.String("task_id", taskID),
			zap.String("actor", userID),
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}

func (s *Service) emit(ctx context.Context, name string, p Principal, taskIDs []string, payload interface{}, meta map[string]interface{}) {
	evt := &bus.Event{
		Name:      name,
		ActorID:   p.ID,
		TaskIDs:   taskIDs,
		Payload:   payload,
		Metadata:  meta,
		Timestamp: s.now(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		logger.Warn("Failed to publish task event",
			zap.String("event", name),
			zap.Strings("task_ids", taskIDs),
			zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, a *affected) {
	s.cache.Invalidate(ctx, a.patterns()...)
}
