package filestore

import (
	"errors"
	"fmt"
)

// 存储层对外只报四类错误；修订控制层靠 errors.Is 区分“该重试”和“该放弃”。
var (
	ErrTimeout            = errors.New("STORE_TIMEOUT")
	ErrPathNotFound       = errors.New("STORE_PATH_NOT_FOUND")
	ErrRevisionMismatch   = errors.New("STORE_REVISION_MISMATCH")
	ErrStorageUnavailable = errors.New("STORE_UNAVAILABLE")
)

// ConflictError 携带冲突现场，便于日志排查；errors.Is 上仍归类为
// ErrRevisionMismatch，调用方不需要感知具体类型。
type ConflictError struct {
	DocID    string
	Expected int
	Current  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision mismatch: doc=%s expected=%d current=%d",
		e.DocID, e.Expected, e.Current)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrRevisionMismatch
}
