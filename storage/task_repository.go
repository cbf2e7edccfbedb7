package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallnest/taskhub/tasks"
	"gorm.io/gorm"
)

// TaskRepository implements tasks.Repository.
type TaskRepository struct {
	db *gorm.DB
}

var _ tasks.Repository = (*TaskRepository)(nil)

// Create 插入任务
func (r *TaskRepository) Create(ctx context.Context, t *tasks.Task) error {
	if t.Version == 0 {
		t.Version = 1
	}
	rec, err := toTaskRecord(t)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Get 按 ID 获取任务
func (r *TaskRepository) Get(ctx context.Context, id string, withRelations bool) (*tasks.Task, error) {
	q := r.db.WithContext(ctx)
	if withRelations {
		q = preloadRelations(q)
	}
	var rec taskRecord
	if err := q.Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, tasks.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	t := rec.toTask()
	return &t, nil
}

// Save 保存任务（乐观锁）
func (r *TaskRepository) Save(ctx context.Context, t *tasks.Task) error {
	if err := saveVersioned(r.db.WithContext(ctx), t); err != nil {
		return err
	}
	t.Version++
	return nil
}

// SaveAll saves every task in one transaction. Versions are only bumped in
// memory once the transaction commits.
func (r *TaskRepository) SaveAll(ctx context.Context, ts []*tasks.Task) error {
	if len(ts) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range ts {
			if err := saveVersioned(tx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, t := range ts {
		t.Version++
	}
	return nil
}

func saveVersioned(db *gorm.DB, t *tasks.Task) error {
	rec, err := toTaskRecord(t)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	res := db.Model(&taskRecord{}).
		Where("id = ? AND version = ?", t.ID, t.Version).
		Updates(rec.columns(t.Version + 1))
	if res.Error != nil {
		return fmt.Errorf("failed to update task: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.Model(&taskRecord{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check task: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("task %s: %w", t.ID, tasks.ErrNotFound)
	}
	return fmt.Errorf("task %s at version %d: %w", t.ID, t.Version, tasks.ErrConflict)
}

// SoftDelete 软删除任务
func (r *TaskRepository) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&taskRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, tasks.ErrNotFound)
	}
	return nil
}

// MaxPosition 返回作用域内最大的 position，没有任务时为 0
func (r *TaskRepository) MaxPosition(ctx context.Context, projectID *string) (int, error) {
	q := r.db.WithContext(ctx).Model(&taskRecord{})
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	} else {
		q = q.Where("project_id IS NULL")
	}
	var result struct {
		MaxPosition *int
	}
	if err := q.Select("MAX(position) AS max_position").Scan(&result).Error; err != nil {
		return 0, fmt.Errorf("failed to query max position: %w", err)
	}
	if result.MaxPosition == nil {
		return 0, nil
	}
	return *result.MaxPosition, nil
}

// Find runs the filter engine: scope, filters, ordering and pagination.
func (r *TaskRepository) Find(ctx context.Context, q tasks.Query) (tasks.Page, error) {
	q.ListOptions = q.ListOptions.Normalize()
	if q.Now.IsZero() {
		q.Now = time.Now().UTC()
	}

	base := applyFilter(r.db.WithContext(ctx).Model(&taskRecord{}), q).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return tasks.Page{}, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := base.Order(orderBy(q.ListOptions)).Offset(q.Offset()).Limit(q.Limit)
	if q.WithRelations {
		query = preloadRelations(query)
	}
	var records []taskRecord
	if err := query.Find(&records).Error; err != nil {
		return tasks.Page{}, fmt.Errorf("failed to list tasks: %w", err)
	}

	items := make([]tasks.Task, 0, len(records))
	for i := range records {
		items = append(items, records[i].toTask())
	}
	return tasks.NewPage(items, total, q.ListOptions), nil
}

// Stats aggregates the tasks viewerID created or is assigned to.
func (r *TaskRepository) Stats(ctx context.Context, viewerID, projectID string, now time.Time) (*tasks.Stats, error) {
	base := r.db.WithContext(ctx).Model(&taskRecord{}).
		Where("(creator_id = ? OR assignee_id = ?)", viewerID, viewerID)
	if projectID != "" {
		base = base.Where("project_id = ?", projectID)
	}
	base = base.Session(&gorm.Session{})

	st := tasks.NewStats()

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := base.Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	for _, row := range byStatus {
		st.ByStatus[tasks.Status(row.Status)] = row.Count
	}

	var byPriority []struct {
		Priority string
		Count    int64
	}
	if err := base.Select("priority, COUNT(*) AS count").Group("priority").Scan(&byPriority).Error; err != nil {
		return nil, fmt.Errorf("failed to count tasks by priority: %w", err)
	}
	for _, row := range byPriority {
		st.ByPriority[tasks.Priority(row.Priority)] = row.Count
	}

	if err := base.Where("due_date IS NOT NULL AND due_date < ? AND status <> ?", now.UTC(), string(tasks.StatusDone)).
		Count(&st.Overdue).Error; err != nil {
		return nil, fmt.Errorf("failed to count overdue tasks: %w", err)
	}
	if err := base.Where("is_blocked = ?", true).Count(&st.Blocked).Error; err != nil {
		return nil, fmt.Errorf("failed to count blocked tasks: %w", err)
	}

	st.Finalize()
	return st, nil
}

func preloadRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Creator").Preload("Assignee").Preload("Project")
}

func applyFilter(db *gorm.DB, q tasks.Query) *gorm.DB {
	viewer := q.Viewer.ID
	if !q.Unrestricted {
		db = db.Where("(creator_id = ? OR assignee_id = ?)", viewer, viewer)
	}

	f := q.Filter
	if f.Status != "" {
		db = db.Where("status = ?", string(f.Status))
	}
	if f.Priority != "" {
		db = db.Where("priority = ?", string(f.Priority))
	}
	if f.IssueType != "" {
		db = db.Where("issue_type = ?", string(f.IssueType))
	}
	if f.AssigneeID != "" {
		db = db.Where("assignee_id = ?", f.AssigneeID)
	}
	if f.ProjectID != "" {
		db = db.Where("project_id = ?", f.ProjectID)
	}
	if f.CreatorID != "" {
		db = db.Where("creator_id = ?", f.CreatorID)
	}
	if f.DueFrom != nil {
		db = db.Where("due_date >= ?", f.DueFrom.UTC())
	}
	if f.DueTo != nil {
		db = db.Where("due_date <= ?", f.DueTo.UTC())
	}
	if f.Overdue {
		db = db.Where("due_date IS NOT NULL AND due_date < ? AND status <> ?", q.Now.UTC(), string(tasks.StatusDone))
	}
	if f.Blocked != nil {
		db = db.Where("is_blocked = ?", *f.Blocked)
	}
	if f.Archived != nil {
		db = db.Where("is_archived = ?", *f.Archived)
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		db = db.Where(`search_text LIKE ? ESCAPE '\'`, "%"+escapeLike(term)+"%")
	}
	if f.MyTasks {
		db = db.Where("assignee_id = ?", viewer)
	}
	if f.Unassigned {
		db = db.Where("assignee_id IS NULL")
	}
	return db
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// orderBy builds the ORDER BY clause. Status and priority sort by rank,
// due dates put missing values last, and created_at DESC then id break ties.
func orderBy(o tasks.ListOptions) string {
	dir := "DESC"
	if o.SortOrder == tasks.SortAsc {
		dir = "ASC"
	}

	var primary string
	switch o.SortBy {
	case tasks.SortPriority:
		primary = priorityRankExpr + " " + dir
	case tasks.SortStatus:
		primary = statusRankExpr + " " + dir
	case tasks.SortDueDate:
		primary = "due_date IS NULL, due_date " + dir
	default:
		primary = string(o.SortBy) + " " + dir
	}
	return primary + ", created_at DESC, id ASC"
}

var (
	priorityRankExpr = rankExpr("priority", priorityRanks())
	statusRankExpr   = rankExpr("status", statusRanks())
)

func priorityRanks() map[string]int {
	out := make(map[string]int, len(tasks.AllPriorities))
	for _, p := range tasks.AllPriorities {
		out[string(p)] = p.Rank()
	}
	return out
}

func statusRanks() map[string]int {
	out := make(map[string]int, len(tasks.AllStatuses))
	for _, s := range tasks.AllStatuses {
		out[string(s)] = s.Rank()
	}
	return out
}

// rankExpr renders CASE column WHEN 'v' THEN n ... ELSE 0 END with the
// values ordered by rank so the SQL text is stable.
func rankExpr(column string, ranks map[string]int) string {
	values := make([]string, 0, len(ranks))
	for v := range ranks {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return ranks[values[i]] > ranks[values[j]] })

	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(column)
	for _, v := range values {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", v, ranks[v])
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}
