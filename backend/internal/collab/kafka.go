package collab

import (
	"time"

	"syncServer/backend/internal/ot/delta"
)

// ChangeAppliedEvent 是一条变更落盘后的对外广播事件。
// Delta 是最终落盘的那份（可能被 rebase 过），不是客户端提交的原件。
type ChangeAppliedEvent struct {
	EventType   string      `json:"eventType"` // 固定 "CHANGE_APPLIED"
	DocID       string      `json:"docId"`
	OperationID string      `json:"operationId"`
	RevNum      int         `json:"revNum"`
	AuthorID    uint64      `json:"authorId"`
	ClientID    string      `json:"clientId"`
	ClientSeq   uint64      `json:"clientSeq"` // 同一个 clientId 的本地递增序号
	BaseRevNum  int         `json:"baseRevNum"`
	Delta       delta.Delta `json:"delta"`
	AppliedAt   time.Time   `json:"appliedAt"`
}

const EventTypeChangeApplied = "CHANGE_APPLIED"
