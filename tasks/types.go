package tasks

// Status 任务状态
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusTesting    Status = "testing"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses 全部状态，按声明顺序
var AllStatuses = []Status{
	StatusBacklog, StatusTodo, StatusInProgress, StatusInReview,
	StatusTesting, StatusDone, StatusCancelled,
}

// statusRank 排序权重，越大越靠前（降序时）
var statusRank = map[Status]int{
	StatusInProgress: 7,
	StatusInReview:   6,
	StatusTesting:    5,
	StatusTodo:       4,
	StatusBacklog:    3,
	StatusDone:       2,
	StatusCancelled:  1,
}

// IsValid 检查状态是否合法
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank 返回排序权重，非法值为 0
func (s Status) Rank() int {
	return statusRank[s]
}

// Priority 任务优先级
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// AllPriorities 全部优先级，由低到高
var AllPriorities = []Priority{
	PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent, PriorityCritical,
}

var priorityRank = map[Priority]int{
	PriorityCritical: 5,
	PriorityUrgent:   4,
	PriorityHigh:     3,
	PriorityMedium:   2,
	PriorityLow:      1,
}

// IsValid 检查优先级是否合法
func (p Priority) IsValid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank 返回排序权重，非法值为 0
func (p Priority) Rank() int {
	return priorityRank[p]
}

// IssueType 任务类型
type IssueType string

const (
	IssueFeature        IssueType = "feature"
	IssueBug            IssueType = "bug"
	IssueImprovement    IssueType = "improvement"
	IssueDocumentation  IssueType = "documentation"
	IssueRefactoring    IssueType = "refactoring"
	IssueTesting        IssueType = "testing"
	IssueClientFeedback IssueType = "client_feedback"
)

// AllIssueTypes 全部任务类型
var AllIssueTypes = []IssueType{
	IssueFeature, IssueBug, IssueImprovement, IssueDocumentation,
	IssueRefactoring, IssueTesting, IssueClientFeedback,
}

// IsValid 检查任务类型是否合法
func (t IssueType) IsValid() bool {
	for _, v := range AllIssueTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Role 调用方角色
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleDeveloper      Role = "developer"
	RoleClient         Role = "client"
	RoleUser           Role = "user"
)

// IsValid 检查角色是否合法
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleDeveloper, RoleClient, RoleUser:
		return true
	default:
		return false
	}
}

// Privilege orders roles by the extra powers they carry. Roles without
// special powers share the lowest level.
func (r Role) Privilege() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleProjectManager:
		return 2
	default:
		return 1
	}
}

// ActivityType 审计记录类型
type ActivityType string

const (
	ActivityCreated       ActivityType = "created"
	ActivityUpdated       ActivityType = "updated"
	ActivityStatusChanged ActivityType = "status_changed"
	ActivityAssigned      ActivityType = "assigned"
	ActivityUnassigned    ActivityType = "unassigned"
	ActivityBlocked       ActivityType = "blocked"
	ActivityUnblocked     ActivityType = "unblocked"
	ActivityArchived      ActivityType = "archived"
	ActivityUnarchived    ActivityType = "unarchived"
	ActivityTimeLogged    ActivityType = "time_logged"
	ActivityBulkUpdated   ActivityType = "bulk_updated"
)
