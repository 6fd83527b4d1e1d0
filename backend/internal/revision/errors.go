package revision

import "errors"

var (
	// ErrTooMuchContention：乐观重试次数耗尽。上层可退避后整体重试。
	ErrTooMuchContention = errors.New("TOO_MUCH_CONTENTION")
	// ErrClosed：控制实例已关闭，不再接受任何操作。
	ErrClosed = errors.New("CONTROL_CLOSED")
	// ErrRevisionNotAvailable：请求的修订号在未来（调用方 bug）或非法。
	ErrRevisionNotAvailable = errors.New("REVISION_NOT_AVAILABLE")
)
