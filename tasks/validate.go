package tasks

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// report json field names instead of Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("nonempty", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = validate.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsValid()
	})
	_ = validate.RegisterValidation("task_priority", func(fl validator.FieldLevel) bool {
		return Priority(fl.Field().String()).IsValid()
	})
	_ = validate.RegisterValidation("issue_type", func(fl validator.FieldLevel) bool {
		return IssueType(fl.Field().String()).IsValid()
	})
}

// CreateTaskInput 创建任务参数
type CreateTaskInput struct {
	Title          string                 `json:"title" validate:"required,nonempty,max=255"`
	Description    string                 `json:"description,omitempty"`
	Status         Status                 `json:"status,omitempty" validate:"omitempty,task_status"`
	Priority       Priority               `json:"priority,omitempty" validate:"omitempty,task_priority"`
	IssueType      IssueType              `json:"issue_type,omitempty" validate:"omitempty,issue_type"`
	ProjectID      *string                `json:"project_id,omitempty" validate:"omitempty,nonempty"`
	AssigneeID     *string                `json:"assignee_id,omitempty" validate:"omitempty,nonempty"`
	ParentID       *string                `json:"parent_id,omitempty" validate:"omitempty,nonempty"`
	DueDate        *time.Time             `json:"due_date,omitempty"`
	EstimatedHours float64                `json:"estimated_hours,omitempty" validate:"gte=0"`
	StoryPoints    int                    `json:"story_points,omitempty" validate:"gte=0"`
	Position       *int                   `json:"position,omitempty" validate:"omitempty,gte=0"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateTaskInput is a partial update: nil fields are left alone. An empty
// string for AssigneeID, ProjectID or ParentID clears the reference.
type UpdateTaskInput struct {
	Title          *string                `json:"title,omitempty" validate:"omitempty,nonempty,max=255"`
	Description    *string                `json:"description,omitempty"`
	Status         *Status                `json:"status,omitempty" validate:"omitempty,task_status"`
	Priority       *Priority              `json:"priority,omitempty" validate:"omitempty,task_priority"`
	IssueType      *IssueType             `json:"issue_type,omitempty" validate:"omitempty,issue_type"`
	AssigneeID     *string                `json:"assignee_id,omitempty"`
	ProjectID      *string                `json:"project_id,omitempty"`
	ParentID       *string                `json:"parent_id,omitempty"`
	DueDate        *time.Time             `json:"due_date,omitempty"`
	ClearDueDate   bool                   `json:"clear_due_date,omitempty"`
	EstimatedHours *float64               `json:"estimated_hours,omitempty" validate:"omitempty,gte=0"`
	StoryPoints    *int                   `json:"story_points,omitempty" validate:"omitempty,gte=0"`
	Position       *int                   `json:"position,omitempty" validate:"omitempty,gte=0"`
	IsArchived     *bool                  `json:"is_archived,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// BulkUpdateInput 批量更新参数
type BulkUpdateInput struct {
	TaskIDs    []string   `json:"task_ids" validate:"required,min=1,max=100,dive,required"`
	Status     *Status    `json:"status,omitempty" validate:"omitempty,task_status"`
	Priority   *Priority  `json:"priority,omitempty" validate:"omitempty,task_priority"`
	IssueType  *IssueType `json:"issue_type,omitempty" validate:"omitempty,issue_type"`
	AssigneeID *string    `json:"assignee_id,omitempty"`
	IsArchived *bool      `json:"is_archived,omitempty"`
}

func (in BulkUpdateInput) empty() bool {
	return in.Status == nil && in.Priority == nil && in.IssueType == nil &&
		in.AssigneeID == nil && in.IsArchived == nil
}

// TimeEntryInput 工时记录
type TimeEntryInput struct {
	Hours       float64 `json:"hours" validate:"gt=0,lte=1000"`
	Description string  `json:"description,omitempty" validate:"max=1000"`
}

// ValidateStruct runs the struct tags of s and converts failures into a
// *ValidationError.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate input: %w", err)
	}
	out := &ValidationError{Violations: make([]FieldViolation, 0, len(fieldErrs))}
	for _, e := range fieldErrs {
		out.Violations = append(out.Violations, FieldViolation{
			Field: e.Field(),
			Rule:  e.Tag(),
			Value: e.Value(),
		})
	}
	return out
}
