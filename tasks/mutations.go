package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/smallnest/taskhub/bus"
)

// mutation describes the audit entry and event one write produces.
type mutation struct {
	activity    ActivityType
	description string
	metadata    map[string]interface{}
	event       string
}

// commit persists t, then logs, emits and invalidates in that order.
func (s *Service) commit(ctx context.Context, p Principal, before Task, t *Task, m mutation) (*Task, error) {
	t.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, t); err != nil {
		return nil, s.storageFailure("save", p, t.ID, err)
	}
	s.logActivity(ctx, t.ID, p.ID, m.activity, m.description, m.metadata)
	s.emit(ctx, m.event, p, []string{t.ID}, t.Clone(), m.metadata)
	s.invalidate(ctx, newAffected().task(&before).task(t).user(p.ID))
	return t, nil
}

// Create 创建任务
func (s *Service) Create(ctx context.Context, p Principal, in CreateTaskInput) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.ProjectID != nil {
		if err := s.requireProject(ctx, p, *in.ProjectID); err != nil {
			return nil, err
		}
	}
	if in.AssigneeID != nil {
		if err := s.requireUser(ctx, p, *in.AssigneeID); err != nil {
			return nil, err
		}
	}
	if in.ParentID != nil {
		if _, err := s.load(ctx, p, *in.ParentID, false); err != nil {
			return nil, err
		}
	}

	now := s.now()
	t := &Task{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Priority:       in.Priority,
		IssueType:      in.IssueType,
		EstimatedHours: in.EstimatedHours,
		StoryPoints:    in.StoryPoints,
		Metadata:       in.Metadata,
		ProjectID:      cloneString(in.ProjectID),
		AssigneeID:     cloneString(in.AssigneeID),
		ParentID:       cloneString(in.ParentID),
		CreatorID:      p.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	status := in.Status
	if status == "" {
		status = StatusTodo
	}
	t.SetStatus(status, now)
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.IssueType == "" {
		t.IssueType = IssueFeature
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		t.DueDate = &due
	}
	if in.Position != nil {
		t.Position = *in.Position
	} else {
		last, err := s.repo.MaxPosition(ctx, t.ProjectID)
		if err != nil {
			return nil, s.storageFailure("max_position", p, "", err)
		}
		t.Position = last + 1
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, s.storageFailure("create", p, t.ID, err)
	}

	meta := map[string]interface{}{
		"title":    t.Title,
		"status":   t.Status,
		"priority": t.Priority,
	}
	s.logActivity(ctx, t.ID, p.ID, ActivityCreated, fmt.Sprintf("Task created: %s", t.Title), meta)
	s.emit(ctx, bus.TaskCreated, p, []string{t.ID}, t.Clone(), meta)
	s.invalidate(ctx, newAffected().task(t).user(p.ID))
	return t, nil
}

// Update applies a partial update. A no-op update returns the task
// without logging or emitting anything.
func (s *Service) Update(ctx context.Context, p Principal, id string, in UpdateTaskInput) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.ParentID != nil && *in.ParentID == id {
		return nil, invalidField("parent_id", "not_self", id)
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	if in.AssigneeID != nil && *in.AssigneeID != "" {
		if err := s.requireUser(ctx, p, *in.AssigneeID); err != nil {
			return nil, err
		}
	}
	if in.ProjectID != nil && *in.ProjectID != "" {
		if err := s.requireProject(ctx, p, *in.ProjectID); err != nil {
			return nil, err
		}
	}
	if in.ParentID != nil && *in.ParentID != "" {
		if _, err := s.load(ctx, p, *in.ParentID, false); err != nil {
			return nil, err
		}
	}

	before := t.Clone()
	changes := t.ApplyUpdate(in, s.now())
	if len(changes) == 0 {
		return t, nil
	}
	return s.commit(ctx, p, before, t, mutation{
		activity:    ActivityUpdated,
		description: "Task updated: " + strings.Join(changedFields(changes), ", "),
		metadata:    map[string]interface{}{"changes": changes},
		event:       bus.TaskUpdated,
	})
}

// Delete soft-deletes a task. Only admins, project managers and the
// creator may delete.
func (s *Service) Delete(ctx context.Context, p Principal, id string) error {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return err
	}
	if id == "" {
		return invalidField("id", "required", nil)
	}
	t, err := s.repo.Get(ctx, id, false)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("task", id)
		}
		return s.storageFailure("get", p, id, err)
	}
	if !p.CanDelete(t) {
		return fmt.Errorf("delete task %s: %w", id, ErrForbidden)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return s.storageFailure("delete", p, id, err)
	}
	s.emit(ctx, bus.TaskDeleted, p, []string{id}, t.Clone(), nil)
	s.invalidate(ctx, newAffected().task(t).user(p.ID))
	return nil
}

// UpdateStatus 修改状态
func (s *Service) UpdateStatus(ctx context.Context, p Principal, id string, status Status) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, invalidField("status", "task_status", string(status))
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	before := t.Clone()
	old, changed := t.SetStatus(status, s.now())
	if !changed {
		return t, nil
	}
	return s.commit(ctx, p, before, t, mutation{
		activity:    ActivityStatusChanged,
		description: fmt.Sprintf("Status changed from %s to %s", old, status),
		metadata:    map[string]interface{}{"oldStatus": old, "newStatus": status},
		event:       bus.TaskStatusChanged,
	})
}

// UpdatePriority 修改优先级
func (s *Service) UpdatePriority(ctx context.Context, p Principal, id string, priority Priority) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	if !priority.IsValid() {
		return nil, invalidField("priority", "task_priority", string(priority))
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	before := t.Clone()
	old, changed := t.SetPriority(priority)
	if !changed {
		return t, nil
	}
	return s.commit(ctx, p, before, t, mutation{
		activity:    ActivityUpdated,
		description: fmt.Sprintf("Priority changed from %s to %s", old, priority),
		metadata:    map[string]interface{}{"oldPriority": old, "newPriority": priority},
		event:       bus.TaskPriorityChanged,
	})
}

// Assign 指派任务
func (s *Service) Assign(ctx context.Context, p Principal, id, assigneeID string) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(assigneeID) == "" {
		return nil, invalidField("assignee_id", "required", nil)
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, p, assigneeID); err != nil {
		return nil, err
	}
	before := t.Clone()
	old, changed := t.AssignTo(assigneeID)
	if !changed {
		return t, nil
	}
	return s.commit(ctx, p, before, t, mutation{
		activity:    ActivityAssigned,
		description: fmt.Sprintf("Task assigned to %s", assigneeID),
		metadata:    map[string]interface{}{"oldAssigneeId": derefString(old), "newAssigneeId": assigneeID},
		event:       bus.TaskAssigned,
	})
}

// Unassign 取消指派
func (s *Service) Unassign(ctx context.Context, p Principal, id string) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	before := t.Clone()
	old, changed := t.Unassign()
	if !changed {
		return t, nil
	}
	return s.commit(ctx, p, before, t, mutation{
		activity:    ActivityUnassigned,
		description: fmt.Sprintf("Task unassigned from %s", *old),
		metadata:    map[string]interface{}{"oldAssigneeId": *old},
		event:       bus.TaskUnassigned,
	})
}

// AddTimeEntry adds logged hours to the task's actual hours.
func (s *Service) AddTimeEntry(ctx context.Context, p Principal, id string, in TimeEntryInput) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	before := t.Clone()
	previous, err := t.LogTime(in.Hours)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, p, before, t, mutation{
		activity:    ActivityTimeLogged,
		description: fmt.Sprintf("Logged %.2f hours", in.Hours),
		metadata: map[string]interface{}{
			"hours":         in.Hours,
			"previousHours": previous,
			"actualHours":   t.ActualHours,
			"description":   in.Description,
		},
		event: bus.TaskTimeLogged,
	})
}

// Block 标记任务阻塞，必须给出原因
func (s *Service) Block(ctx context.Context, p Principal, id, reason string) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalidField("reason", "required", nil)
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	before := t.Clone()
	if !t.Block(reason) {
		return t, nil
	}
	return s.commit(ctx, p, before, t, mutation{
		activity:    ActivityBlocked,
		description: "Task blocked: " + reason,
		metadata:    map[string]interface{}{"reason": reason, "previousReason": before.BlockedReason},
		event:       bus.TaskBlocked,
	})
}

// Unblock 解除阻塞
func (s *Service) Unblock(ctx context.Context, p Principal, id string) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	before := t.Clone()
	reason, changed := t.Unblock()
	if !changed {
		return t, nil
	}
	return s.commit(ctx, p, before, t, mutation{
		activity:    ActivityUnblocked,
		description: "Task unblocked",
		metadata:    map[string]interface{}{"reason": reason},
		event:       bus.TaskUnblocked,
	})
}

// Archive 归档
func (s *Service) Archive(ctx context.Context, p Principal, id string) (*Task, error) {
	return s.setArchived(ctx, p, id, true)
}

// Unarchive 取消归档
func (s *Service) Unarchive(ctx context.Context, p Principal, id string) (*Task, error) {
	return s.setArchived(ctx, p, id, false)
}

func (s *Service) setArchived(ctx context.Context, p Principal, id string, archived bool) (*Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	t, err := s.load(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	before := t.Clone()
	m := mutation{
		activity:    ActivityArchived,
		description: "Task archived",
		event:       bus.TaskArchived,
	}
	var changed bool
	if archived {
		changed = t.Archive()
	} else {
		changed = t.Unarchive()
		m.activity, m.description, m.event = ActivityUnarchived, "Task unarchived", bus.TaskUnarchived
	}
	if !changed {
		return t, nil
	}
	m.metadata = map[string]interface{}{"oldArchived": !archived, "newArchived": archived}
	return s.commit(ctx, p, before, t, m)
}

// BulkUpdate applies one partial update to many tasks. Every task is
// loaded and authorized before anything is written; if any id is missing
// or inaccessible the whole batch fails with ErrForbidden. Changed rows
// are saved in a single transaction.
func (s *Service) BulkUpdate(ctx context.Context, p Principal, in BulkUpdateInput) ([]Task, error) {
	ctx, cancel, err := s.begin(ctx, p)
	defer cancel()
	if err != nil {
		return nil, err
	}
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.empty() {
		return nil, invalidField("updates", "required", nil)
	}
	if in.AssigneeID != nil && *in.AssigneeID != "" {
		if err := s.requireUser(ctx, p, *in.AssigneeID); err != nil {
			return nil, err
		}
	}

	ids := uniqueIDs(in.TaskIDs)
	loaded := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.repo.Get(ctx, id, false)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("bulk update task %s: %w", id, ErrForbidden)
			}
			return nil, s.storageFailure("get", p, id, err)
		}
		ok, err := s.canAccess(ctx, p, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("bulk update task %s: %w", id, ErrForbidden)
		}
		loaded = append(loaded, t)
	}

	type pending struct {
		before  Task
		task    *Task
		changes map[string]Change
	}
	now := s.now()
	var changed []pending
	for _, t := range loaded {
		before := t.Clone()
		changes := t.ApplyBulk(in, now)
		if len(changes) == 0 {
			continue
		}
		t.UpdatedAt = now
		changed = append(changed, pending{before: before, task: t, changes: changes})
	}

	out := make([]Task, 0, len(loaded))
	if len(changed) == 0 {
		for _, t := range loaded {
			out = append(out, *t)
		}
		return out, nil
	}

	toSave := make([]*Task, 0, len(changed))
	for _, c := range changed {
		toSave = append(toSave, c.task)
	}
	if err := s.repo.SaveAll(ctx, toSave); err != nil {
		return nil, s.storageFailure("bulk_save", p, "", err)
	}

	aff := newAffected().user(p.ID)
	changedIDs := make([]string, 0, len(changed))
	for _, c := range changed {
		s.logActivity(ctx, c.task.ID, p.ID, ActivityBulkUpdated,
			"Task updated in bulk: "+strings.Join(changedFields(c.changes), ", "),
			map[string]interface{}{"changes": c.changes})
		aff.task(&c.before).task(c.task)
		changedIDs = append(changedIDs, c.task.ID)
	}
	for _, t := range loaded {
		out = append(out, t.Clone())
	}

	s.emit(ctx, bus.TaskBulkUpdated, p, changedIDs, out, map[string]interface{}{
		"count":   len(changedIDs),
		"updates": in,
	})
	s.invalidate(ctx, aff)
	return out, nil
}

func changedFields(changes map[string]Change) []string {
	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
