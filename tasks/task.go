package tasks

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// UserRef is the summary of a user embedded in task responses.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

// ProjectRef is the summary of a project embedded in task responses.
type ProjectRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

// User 目录中的用户
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Project 目录中的项目
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task 任务
type Task struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description,omitempty"`
	Status         Status                 `json:"status"`
	Priority       Priority               `json:"priority"`
	IssueType      IssueType              `json:"issue_type"`
	EstimatedHours float64                `json:"estimated_hours"`
	ActualHours    float64                `json:"actual_hours"`
	StoryPoints    int                    `json:"story_points"`
	Position       int                    `json:"position"`
	IsBlocked      bool                   `json:"is_blocked"`
	BlockedReason  string                 `json:"blocked_reason,omitempty"`
	IsArchived     bool                   `json:"is_archived"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	DueDate        *time.Time             `json:"due_date,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	ProjectID      *string                `json:"project_id,omitempty"`
	AssigneeID     *string                `json:"assignee_id,omitempty"`
	ParentID       *string                `json:"parent_id,omitempty"`
	CreatorID      string                 `json:"creator_id"`
	Version        int                    `json:"version"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`

	Creator  *UserRef    `json:"creator,omitempty"`
	Assignee *UserRef    `json:"assignee,omitempty"`
	Project  *ProjectRef `json:"project,omitempty"`
}

// Change records one field transition.
type Change struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() Task {
	c := *t
	c.DueDate = cloneTime(t.DueDate)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.ProjectID = cloneString(t.ProjectID)
	c.AssigneeID = cloneString(t.AssigneeID)
	c.ParentID = cloneString(t.ParentID)
	if t.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.Creator != nil {
		u := *t.Creator
		c.Creator = &u
	}
	if t.Assignee != nil {
		u := *t.Assignee
		c.Assignee = &u
	}
	if t.Project != nil {
		p := *t.Project
		c.Project = &p
	}
	return c
}

// IsOverdue reports whether the due date has passed and the task is not done.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != StatusDone
}

// IsAssignedTo reports whether userID is the current assignee.
func (t *Task) IsAssignedTo(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// SetStatus is the only place that touches CompletedAt: entering done
// stamps it, leaving done clears it.
func (t *Task) SetStatus(s Status, now time.Time) (old Status, changed bool) {
	old = t.Status
	if old == s {
		return old, false
	}
	t.Status = s
	if s == StatusDone {
		c := now.UTC()
		t.CompletedAt = &c
	} else {
		t.CompletedAt = nil
	}
	return old, true
}

// SetPriority 修改优先级
func (t *Task) SetPriority(p Priority) (old Priority, changed bool) {
	old = t.Priority
	if old == p {
		return old, false
	}
	t.Priority = p
	return old, true
}

// AssignTo 指派给用户
func (t *Task) AssignTo(userID string) (old *string, changed bool) {
	old = cloneString(t.AssigneeID)
	if t.IsAssignedTo(userID) {
		return old, false
	}
	t.AssigneeID = &userID
	t.Assignee = nil
	return old, true
}

// Unassign 取消指派
func (t *Task) Unassign() (old *string, changed bool) {
	old = cloneString(t.AssigneeID)
	if t.AssigneeID == nil {
		return nil, false
	}
	t.AssigneeID = nil
	t.Assignee = nil
	return old, true
}

// LogTime adds hours to ActualHours and returns the previous total.
func (t *Task) LogTime(hours float64) (previous float64, err error) {
	if hours <= 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return t.ActualHours, invalidField("hours", "gt", hours)
	}
	previous = t.ActualHours
	t.ActualHours = previous + hours
	return previous, nil
}

// Block 标记阻塞
func (t *Task) Block(reason string) (changed bool) {
	reason = strings.TrimSpace(reason)
	if t.IsBlocked && t.BlockedReason == reason {
		return false
	}
	t.IsBlocked = true
	t.BlockedReason = reason
	return true
}

// Unblock clears the blocked flag and returns the reason it carried.
func (t *Task) Unblock() (reason string, changed bool) {
	if !t.IsBlocked {
		return "", false
	}
	reason = t.BlockedReason
	t.IsBlocked = false
	t.BlockedReason = ""
	return reason, true
}

// Archive 归档
func (t *Task) Archive() bool {
	if t.IsArchived {
		return false
	}
	t.IsArchived = true
	return true
}

// Unarchive 取消归档
func (t *Task) Unarchive() bool {
	if !t.IsArchived {
		return false
	}
	t.IsArchived = false
	return true
}

// ApplyUpdate applies the non-nil fields of in and returns the changed
// fields keyed by their JSON name.
func (t *Task) ApplyUpdate(in UpdateTaskInput, now time.Time) map[string]Change {
	changes := make(map[string]Change)
	record := func(field string, old, new interface{}) {
		changes[field] = Change{Old: old, New: new}
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title != t.Title {
			record("title", t.Title, title)
			t.Title = title
		}
	}
	if in.Description != nil && *in.Description != t.Description {
		record("description", t.Description, *in.Description)
		t.Description = *in.Description
	}
	if in.Status != nil {
		if old, ok := t.SetStatus(*in.Status, now); ok {
			record("status", old, *in.Status)
		}
	}
	if in.Priority != nil {
		if old, ok := t.SetPriority(*in.Priority); ok {
			record("priority", old, *in.Priority)
		}
	}
	if in.IssueType != nil && *in.IssueType != t.IssueType {
		record("issue_type", t.IssueType, *in.IssueType)
		t.IssueType = *in.IssueType
	}
	if in.AssigneeID != nil {
		if *in.AssigneeID == "" {
			if old, ok := t.Unassign(); ok {
				record("assignee_id", derefString(old), nil)
			}
		} else if old, ok := t.AssignTo(*in.AssigneeID); ok {
			record("assignee_id", derefString(old), *in.AssigneeID)
		}
	}
	if in.ProjectID != nil && !sameRef(t.ProjectID, *in.ProjectID) {
		record("project_id", derefString(t.ProjectID), refValue(*in.ProjectID))
		t.ProjectID = optionalString(*in.ProjectID)
		t.Project = nil
	}
	if in.ParentID != nil && !sameRef(t.ParentID, *in.ParentID) {
		record("parent_id", derefString(t.ParentID), refValue(*in.ParentID))
		t.ParentID = optionalString(*in.ParentID)
	}
	if in.ClearDueDate {
		if t.DueDate != nil {
			record("due_date", *t.DueDate, nil)
			t.DueDate = nil
		}
	} else if in.DueDate != nil {
		due := in.DueDate.UTC()
		if t.DueDate == nil || !t.DueDate.Equal(due) {
			var old interface{}
			if t.DueDate != nil {
				old = *t.DueDate
			}
			record("due_date", old, due)
			t.DueDate = &due
		}
	}
	if in.EstimatedHours != nil && *in.EstimatedHours != t.EstimatedHours {
		record("estimated_hours", t.EstimatedHours, *in.EstimatedHours)
		t.EstimatedHours = *in.EstimatedHours
	}
	if in.StoryPoints != nil && *in.StoryPoints != t.StoryPoints {
		record("story_points", t.StoryPoints, *in.StoryPoints)
		t.StoryPoints = *in.StoryPoints
	}
	if in.Position != nil && *in.Position != t.Position {
		record("position", t.Position, *in.Position)
		t.Position = *in.Position
	}
	if in.IsArchived != nil && *in.IsArchived != t.IsArchived {
		record("is_archived", t.IsArchived, *in.IsArchived)
		t.IsArchived = *in.IsArchived
	}
	if in.Metadata != nil && !sameMetadata(t.Metadata, in.Metadata) {
		record("metadata", t.Metadata, in.Metadata)
		t.Metadata = in.Metadata
	}
	return changes
}

// ApplyBulk applies the subset of fields a bulk update may touch.
func (t *Task) ApplyBulk(in BulkUpdateInput, now time.Time) map[string]Change {
	return t.ApplyUpdate(UpdateTaskInput{
		Status:     in.Status,
		Priority:   in.Priority,
		IssueType:  in.IssueType,
		AssigneeID: in.AssigneeID,
		IsArchived: in.IsArchived,
	}, now)
}

// sameMetadata compares by JSON encoding, which is how metadata is stored:
// a stored 3.0 and an incoming int 3 are equal, and an empty map equals nil.
func sameMetadata(a, b map[string]interface{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	ea, errA := json.Marshal(a)
	eb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func derefString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// optionalString maps "" to nil.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func refValue(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func sameRef(cur *string, next string) bool {
	if cur == nil {
		return next == ""
	}
	return *cur == next
}
