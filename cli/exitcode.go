package cli

import (
	"context"
	"errors"

	"github.com/smallnest/taskhub/tasks"
)

// 退出码，脚本可据此区分失败原因
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
	ExitNotFound     = 3
	ExitForbidden    = 4
	ExitConflict     = 5
	ExitTimeout      = 6
)

// ExitCode classifies err into a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, tasks.ErrInvalidInput):
		return ExitInvalidInput
	case errors.Is(err, tasks.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, tasks.ErrForbidden):
		return ExitForbidden
	case errors.Is(err, tasks.ErrConflict):
		return ExitConflict
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	default:
		return ExitFailure
	}
}
