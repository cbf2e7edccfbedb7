package storage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/smallnest/taskhub/tasks"
	"gorm.io/gorm"
)

type userRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:255;index"`
	Role      string `gorm:"size:32;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRecord) TableName() string { return "users" }

type projectRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	OwnerID     string `gorm:"size:64;not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (projectRecord) TableName() string { return "projects" }

type taskRecord struct {
	ID             string         `gorm:"primaryKey;size:64"`
	Title          string         `gorm:"size:255;not null"`
	Description    string         `gorm:"type:text"`
	Status         string         `gorm:"size:32;not null;index"`
	Priority       string         `gorm:"size:32;not null;index"`
	IssueType      string         `gorm:"size:32;not null"`
	EstimatedHours float64        `gorm:"not null"`
	ActualHours    float64        `gorm:"not null"`
	StoryPoints    int            `gorm:"not null"`
	Position       int            `gorm:"not null;index"`
	IsBlocked      bool           `gorm:"not null"`
	BlockedReason  string         `gorm:"type:text"`
	IsArchived     bool           `gorm:"not null;index"`
	Metadata       string         `gorm:"type:text"`
	SearchText     string         `gorm:"type:text"`
	DueDate        *time.Time     `gorm:"index"`
	CompletedAt    *time.Time     `gorm:"column:completed_at"`
	ProjectID      *string        `gorm:"size:64;index"`
	AssigneeID     *string        `gorm:"size:64;index"`
	ParentID       *string        `gorm:"size:64;index"`
	CreatorID      string         `gorm:"size:64;not null;index"`
	Version        int            `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"index"`
	UpdatedAt      time.Time      `gorm:"not null"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`

	Creator  *userRecord    `gorm:"foreignKey:CreatorID"`
	Assignee *userRecord    `gorm:"foreignKey:AssigneeID"`
	Project  *projectRecord `gorm:"foreignKey:ProjectID"`
}

func (taskRecord) TableName() string { return "tasks" }

type activityRecord struct {
	Seq         uint64    `gorm:"primaryKey;autoIncrement"`
	ID          string    `gorm:"size:64;uniqueIndex;not null"`
	TaskID      string    `gorm:"size:64;not null;index"`
	UserID      string    `gorm:"size:64;not null"`
	Type        string    `gorm:"size:32;not null"`
	Description string    `gorm:"type:text"`
	Metadata    string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index"`
}

func (activityRecord) TableName() string { return "task_activities" }

func toTaskRecord(t *tasks.Task) (*taskRecord, error) {
	meta, err := encodeMetadata(t.Metadata)
	if err != nil {
		return nil, err
	}
	return &taskRecord{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		IssueType:      string(t.IssueType),
		EstimatedHours: t.EstimatedHours,
		ActualHours:    t.ActualHours,
		StoryPoints:    t.StoryPoints,
		Position:       t.Position,
		IsBlocked:      t.IsBlocked,
		BlockedReason:  t.BlockedReason,
		IsArchived:     t.IsArchived,
		Metadata:       meta,
		SearchText:     searchText(t.Title, t.Description),
		DueDate:        utcPtr(t.DueDate),
		CompletedAt:    utcPtr(t.CompletedAt),
		ProjectID:      t.ProjectID,
		AssigneeID:     t.AssigneeID,
		ParentID:       t.ParentID,
		CreatorID:      t.CreatorID,
		Version:        t.Version,
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
	}, nil
}

// columns is the update set for a versioned save.
func (r *taskRecord) columns(version int) map[string]interface{} {
	return map[string]interface{}{
		"title":           r.Title,
		"description":     r.Description,
		"status":          r.Status,
		"priority":        r.Priority,
		"issue_type":      r.IssueType,
		"estimated_hours": r.EstimatedHours,
		"actual_hours":    r.ActualHours,
		"story_points":    r.StoryPoints,
		"position":        r.Position,
		"is_blocked":      r.IsBlocked,
		"blocked_reason":  r.BlockedReason,
		"is_archived":     r.IsArchived,
		"metadata":        r.Metadata,
		"search_text":     r.SearchText,
		"due_date":        r.DueDate,
		"completed_at":    r.CompletedAt,
		"project_id":      r.ProjectID,
		"assignee_id":     r.AssigneeID,
		"parent_id":       r.ParentID,
		"version":         version,
		"updated_at":      r.UpdatedAt,
	}
}

func (r *taskRecord) toTask() tasks.Task {
	t := tasks.Task{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Status:         tasks.Status(r.Status),
		Priority:       tasks.Priority(r.Priority),
		IssueType:      tasks.IssueType(r.IssueType),
		EstimatedHours: r.EstimatedHours,
		ActualHours:    r.ActualHours,
		StoryPoints:    r.StoryPoints,
		Position:       r.Position,
		IsBlocked:      r.IsBlocked,
		BlockedReason:  r.BlockedReason,
		IsArchived:     r.IsArchived,
		Metadata:       decodeMetadata(r.Metadata),
		DueDate:        utcPtr(r.DueDate),
		CompletedAt:    utcPtr(r.CompletedAt),
		ProjectID:      r.ProjectID,
		AssigneeID:     r.AssigneeID,
		ParentID:       r.ParentID,
		CreatorID:      r.CreatorID,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.Creator != nil {
		t.Creator = r.Creator.ref()
	}
	if r.Assignee != nil {
		t.Assignee = r.Assignee.ref()
	}
	if r.Project != nil {
		t.Project = &tasks.ProjectRef{ID: r.Project.ID, Name: r.Project.Name, OwnerID: r.Project.OwnerID}
	}
	return t
}

func (u *userRecord) ref() *tasks.UserRef {
	return &tasks.UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Role: tasks.Role(u.Role)}
}

func (u *userRecord) toUser() *tasks.User {
	return &tasks.User{ID: u.ID, Name: u.Name, Email: u.Email, Role: tasks.Role(u.Role), CreatedAt: u.CreatedAt.UTC()}
}

func (p *projectRecord) toProject() *tasks.Project {
	return &tasks.Project{ID: p.ID, Name: p.Name, Description: p.Description, OwnerID: p.OwnerID, CreatedAt: p.CreatedAt.UTC()}
}

func (a *activityRecord) toActivity() tasks.Activity {
	out := tasks.Activity{
		ID:          a.ID,
		TaskID:      a.TaskID,
		UserID:      a.UserID,
		Type:        tasks.ActivityType(a.Type),
		Description: a.Description,
		CreatedAt:   a.CreatedAt.UTC(),
	}
	if a.Metadata != "" {
		out.Metadata = json.RawMessage(a.Metadata)
	}
	return out
}

func encodeMetadata(meta map[string]interface{}) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeMetadata(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return meta
}

// searchText is the folded text free-text search matches against. sqlite's
// LOWER only folds ASCII, so folding happens here for both sides.
func searchText(title, description string) string {
	return strings.ToLower(title + "\n" + description)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
