package ws

import (
	"encoding/json"
	"sync"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
)

// Hub 管房间（docID → 连接集合）和广播。在线状态本身落在
// presence（redis），Hub 只持句柄，不存数据。
type Hub struct {
	presence cache.PresenceCache
	// 保护 rooms。加入/离开/广播都会先拿锁。
	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		// 房间里存的是连接不是 userID：一个用户可开多个标签页/设备，
		// 广播要逐连接发
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// BroadcastChange 把一条已落盘的变更推给房间里除提交者以外的连接。
// Ops 用引擎返回的最终 delta（可能被 rebase 过），不是客户端原件。
func (h *Hub) BroadcastChange(docID string, from *Conn, op collab.AppliedOp, clientID string, clientSeq uint64) {
	h.mu.RLock()
	conns := h.rooms[docID]
	h.mu.RUnlock()
	msg := OpBroadcastMessage{
		Type:      "op_broadcast",
		DocID:     docID,
		RevNum:    op.RevNum,
		AuthorID:  op.AuthorID,
		ClientID:  clientID,
		ClientSeq: clientSeq,
		Ops:       op.Delta,
		AppliedAt: op.AppliedAt,
	}
	for c := range conns {
		if c == from {
			continue
		}
		c.SendMessage_Enqueue(msg)
	}
}

func (h *Hub) BroadcastPresence(docID string, members []PresenceMember) {
	h.mu.RLock()
	conns := h.rooms[docID]
	h.mu.RUnlock()
	msg := ServerMessage{Type: "presence", DocID: docID, Members: members}
	for c := range conns {
		c.SendMessage_Enqueue(msg)
	}
}

func (h *Hub) BroadcastCaret(docID string, from *Conn, userID uint64, caret json.RawMessage) {
	h.mu.RLock()
	conns := h.rooms[docID]
	h.mu.RUnlock()
	msg := ServerMessage{Type: "caret", DocID: docID, UserID: userID, Caret: caret}
	for c := range conns {
		if c == from {
			continue
		}
		c.SendMessage_Enqueue(msg)
	}
}
