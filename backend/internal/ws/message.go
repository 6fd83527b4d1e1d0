package ws

import (
	"encoding/json"
	"time"

	"syncServer/backend/internal/doc"
	"syncServer/backend/internal/ot/delta"
)

type ClientMessage struct {
	Type     string `json:"type"`
	DocID    string `json:"docId"`
	DocTitle string `json:"docTitle"`
	// joinDocument 的追平起点 / waitRevision 的等待目标
	RevNum     int             `json:"revNum"`
	BaseRevNum int             `json:"baseRevNum"`
	ClientID   string          `json:"clientId"`
	ClientSeq  uint64          `json:"clientSeq"`
	Ops        delta.Delta     `json:"ops"`
	Caret      json.RawMessage `json:"caret,omitempty"`
	Content    string          `json:"content,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ServerMessage struct {
	Type    string           `json:"type"`
	UserID  uint64           `json:"userId,omitempty"`
	DocID   string           `json:"docId,omitempty"`
	RevNum  int              `json:"revNum,omitempty"`
	Members []PresenceMember `json:"members,omitempty"`
	Caret   json.RawMessage  `json:"caret,omitempty"`
	Changes []doc.Change     `json:"changes,omitempty"`
	Content string           `json:"content,omitempty"`
}

type OpSubmitMessage struct {
	Type       string `json:"type"`
	DocID      string `json:"docId"`
	BaseRevNum int    `json:"baseRevNum"`
	// 客户端实例标识。同一用户可有多个 clientId（多端/多标签页）。
	ClientID string `json:"clientId"`
	// 针对同一个 clientId 的“本地递增序号”
	ClientSeq uint64      `json:"clientSeq"`
	Ops       delta.Delta `json:"ops"`
}

// 提交方收到的 ack。CorrectedOps 是实际落盘的 delta：
// 提交输了竞争时和客户端发出的那份不同，客户端拿它修正本地状态。
type OpAppliedMessage struct {
	Type         string      `json:"type"` // 固定 "op_applied"
	DocID        string      `json:"docId"`
	OperationID  string      `json:"operationId"`
	BaseRevNum   int         `json:"baseRevNum"` // 客户端提交时的 base
	RevNum       int         `json:"revNum"`     // 落盘后的修订号
	ClientID     string      `json:"clientId"`
	ClientSeq    uint64      `json:"clientSeq"`
	CorrectedOps delta.Delta `json:"correctedOps"`
	AppliedAt    time.Time   `json:"appliedAt"`
}

// 广播给同文档房间内其他连接的“已应用变更”事件
// - 与 op_applied(ack) 区分：这里把变更推送给其他协作者（包括同用户的其他标签页）
// - 收到后在本地应用 ops，并把本地修订号对齐到 revNum
type OpBroadcastMessage struct {
	Type      string      `json:"type"` // 固定 "op_broadcast"
	DocID     string      `json:"docId"`
	RevNum    int         `json:"revNum"` // 服务端应用后的最新修订号
	AuthorID  uint64      `json:"authorId"`
	ClientID  string      `json:"clientId,omitempty"`
	ClientSeq uint64      `json:"clientSeq,omitempty"`
	Ops       delta.Delta `json:"ops"`
	AppliedAt time.Time   `json:"appliedAt,omitempty"`
}
