package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/smallnest/taskhub/tasks"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"validation", &tasks.ValidationError{Violations: []tasks.FieldViolation{{Field: "title", Rule: "required"}}}, ExitInvalidInput},
		{"wrapped not found", fmt.Errorf("task t1: %w", tasks.ErrNotFound), ExitNotFound},
		{"forbidden", tasks.ErrForbidden, ExitForbidden},
		{"conflict", fmt.Errorf("failed to save: %w", tasks.ErrConflict), ExitConflict},
		{"deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), ExitTimeout},
		{"other", errors.New("disk full"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
