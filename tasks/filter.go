package tasks

import (
	"strings"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// SortField is a whitelisted column to order task lists by.
type SortField string

const (
	SortCreatedAt      SortField = "created_at"
	SortUpdatedAt      SortField = "updated_at"
	SortDueDate        SortField = "due_date"
	SortTitle          SortField = "title"
	SortStatus         SortField = "status"
	SortPriority       SortField = "priority"
	SortPosition       SortField = "position"
	SortEstimatedHours SortField = "estimated_hours"
	SortStoryPoints    SortField = "story_points"
)

var sortFields = map[SortField]bool{
	SortCreatedAt: true, SortUpdatedAt: true, SortDueDate: true, SortTitle: true,
	SortStatus: true, SortPriority: true, SortPosition: true,
	SortEstimatedHours: true, SortStoryPoints: true,
}

// IsValid 是否在白名单内
func (f SortField) IsValid() bool {
	return sortFields[f]
}

// SortOrder ASC / DESC
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filter narrows a task listing. Zero values mean "no constraint".
type Filter struct {
	Status     Status     `json:"status,omitempty"`
	Priority   Priority   `json:"priority,omitempty"`
	IssueType  IssueType  `json:"issue_type,omitempty"`
	AssigneeID string     `json:"assignee_id,omitempty"`
	ProjectID  string     `json:"project_id,omitempty"`
	CreatorID  string     `json:"creator_id,omitempty"`
	DueFrom    *time.Time `json:"due_from,omitempty"`
	DueTo      *time.Time `json:"due_to,omitempty"`
	Overdue    bool       `json:"overdue,omitempty"`
	Blocked    *bool      `json:"blocked,omitempty"`
	Archived   *bool      `json:"archived,omitempty"`
	Search     string     `json:"search,omitempty"`
	MyTasks    bool       `json:"my_tasks,omitempty"`
	Unassigned bool       `json:"unassigned,omitempty"`
}

// ListOptions 分页与排序
type ListOptions struct {
	Page          int       `json:"page"`
	Limit         int       `json:"limit"`
	SortBy        SortField `json:"sort_by"`
	SortOrder     SortOrder `json:"sort_order"`
	WithRelations bool      `json:"with_relations,omitempty"`
}

// Normalize clamps pagination and falls back to created_at DESC for
// unknown sort input.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultLimit
	case o.Limit > MaxLimit:
		o.Limit = MaxLimit
	}
	o.SortBy = SortField(strings.ToLower(string(o.SortBy)))
	if !o.SortBy.IsValid() {
		o.SortBy = SortCreatedAt
	}
	o.SortOrder = SortOrder(strings.ToLower(string(o.SortOrder)))
	if o.SortOrder != SortAsc {
		o.SortOrder = SortDesc
	}
	return o
}

// Offset 计算偏移量
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Query is what the repository executes.
type Query struct {
	Filter
	ListOptions
	Viewer Principal
	// Unrestricted drops the creator/assignee scope.
	Unrestricted bool
	Now          time.Time
}

// Page is one page of a listing with totals over the whole filtered set.
type Page struct {
	Items      []Task `json:"items"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"total_pages"`
	HasNext    bool   `json:"has_next"`
	HasPrev    bool   `json:"has_prev"`
}

// NewPage fills the pagination metadata for items.
func NewPage(items []Task, total int64, opts ListOptions) Page {
	if items == nil {
		items = []Task{}
	}
	pages := 0
	if opts.Limit > 0 {
		pages = int((total + int64(opts.Limit) - 1) / int64(opts.Limit))
	}
	return Page{
		Items:      items,
		Total:      total,
		Page:       opts.Page,
		Limit:      opts.Limit,
		TotalPages: pages,
		HasNext:    opts.Page < pages,
		HasPrev:    opts.Page > 1,
	}
}

// Stats 聚合统计
type Stats struct {
	Total          int64              `json:"total"`
	Completed      int64              `json:"completed"`
	InProgress     int64              `json:"in_progress"`
	Overdue        int64              `json:"overdue"`
	Blocked        int64              `json:"blocked"`
	CompletionRate float64            `json:"completion_rate"`
	ByStatus       map[Status]int64   `json:"by_status"`
	ByPriority     map[Priority]int64 `json:"by_priority"`
}

// NewStats returns stats with every status and priority bucket present.
func NewStats() *Stats {
	s := &Stats{
		ByStatus:   make(map[Status]int64, len(AllStatuses)),
		ByPriority: make(map[Priority]int64, len(AllPriorities)),
	}
	for _, st := range AllStatuses {
		s.ByStatus[st] = 0
	}
	for _, p := range AllPriorities {
		s.ByPriority[p] = 0
	}
	return s
}

// Finalize derives the summary counters from the breakdowns.
func (s *Stats) Finalize() {
	s.Total = 0
	for _, n := range s.ByStatus {
		s.Total += n
	}
	s.Completed = s.ByStatus[StatusDone]
	s.InProgress = s.ByStatus[StatusInProgress]
	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total) * 100
	} else {
		s.CompletionRate = 0
	}
}
