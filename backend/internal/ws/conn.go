package ws

import (
	"context"
	"log"
	"strconv"
	"time"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"

	"github.com/gorilla/websocket"
)

const presenceTTL = 600 * time.Second

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	docID    string
	userID   uint64
	username string
	// 出站消息队列，writeLoop 逐条消费
	send chan OutboundMessage
	// 协作引擎服务
	svc collab.Service
	// 信号量控制，压住提交的并发
	sem *collab.SemaphoreControl
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m OpAppliedMessage) MessageType() string   { return m.Type }
func (m OpBroadcastMessage) MessageType() string { return m.Type }

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		send:     make(chan OutboundMessage, 32),
		svc:      svc,
		sem:      sem,
	}
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
		// 队列满了就丢，慢消费者不能拖住广播
	}
}

func (c *Conn) handleOpSubmit(ctx context.Context, msg OpSubmitMessage) {
	submitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.sem.Acquire(submitCtx); err != nil {
		c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: err.Error()})
		return
	}
	defer c.sem.Release()

	op, err := c.svc.Submit(submitCtx, msg.DocID, c.userID,
		msg.BaseRevNum, msg.ClientID, msg.ClientSeq, msg.Ops)
	if err != nil {
		c.SendMessage_Enqueue(ServerMessage{Type: "error", DocID: msg.DocID, Content: err.Error()})
		return
	}
	c.SendMessage_Enqueue(OpAppliedMessage{
		Type:         "op_applied",
		DocID:        msg.DocID,
		OperationID:  op.OperationID,
		BaseRevNum:   msg.BaseRevNum,
		RevNum:       op.RevNum,
		ClientID:     msg.ClientID,
		ClientSeq:    msg.ClientSeq,
		CorrectedOps: op.Delta,
		AppliedAt:    op.AppliedAt,
	})
	c.hub.BroadcastChange(msg.DocID, c, op, msg.ClientID, msg.ClientSeq)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		if c.docID != "" {
			c.hub.Leave(c.docID, c)
			if err := c.hub.presence.Leave(ctx, c.docID, c.userID); err != nil {
				log.Printf("presence leave error: %v", err)
			}
		}
		close(c.send)
	}()
	for {
		var clientMessage ClientMessage
		if err := c.ws.ReadJSON(&clientMessage); err != nil {
			log.Printf("read json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			return
		}
		switch clientMessage.Type {
		case "heartbeat":
			if err := c.hub.presence.Touch(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
				log.Printf("presence touch error: %v", err)
			}
			members, err := c.hub.presence.AliveMembers(ctx, c.docID)
			if err != nil {
				log.Printf("get members error: %v", err)
			}
			c.hub.BroadcastPresence(c.docID, toWireMembers(members))
			c.send <- ServerMessage{Type: "feedback", Content: "Heartbeat received"}

		case "createDocument":
			docID, err := c.svc.CreateDocument(ctx, c.userID, clientMessage.DocTitle)
			if err != nil {
				log.Printf("create document error: %v", err)
				c.send <- ServerMessage{Type: "error", Content: "CREATE_DOC_FAILED"}
				continue
			}
			if err := c.hub.presence.Touch(ctx, docID, c.userID, c.username, presenceTTL); err != nil {
				log.Printf("presence touch error: %v", err)
			}
			c.send <- ServerMessage{Type: "createDocument", DocID: docID,
				Content: "Document " + docID + " created by user " + strconv.FormatUint(c.userID, 10)}

		case "joinDocument":
			// 允许客户端按标题进房间，用于动态切换
			docID := clientMessage.DocID
			if clientMessage.DocTitle != "" {
				var err error
				docID, err = c.svc.GetDocumentID(ctx, clientMessage.DocTitle)
				if err != nil {
					log.Printf("get document id error: %v", err)
					c.send <- ServerMessage{Type: "error", Content: "GET_DOCID_FAILED"}
					continue
				}
			}
			if docID == "" {
				c.send <- ServerMessage{Type: "error", Content: "MISSING_DOCID"}
				continue
			}
			if c.docID != "" && c.docID != docID {
				// 先离开旧房间
				c.hub.Leave(c.docID, c)
			}
			c.docID = docID
			c.hub.Join(c.docID, c)
			if err := c.hub.presence.Touch(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
				log.Printf("presence touch error: %v", err)
			}

			// 握手追平：把客户端上次见过的修订之后的变更一次性补给它
			changes, err := c.svc.ChangesSince(ctx, c.docID, clientMessage.RevNum, 0)
			if err != nil {
				log.Printf("changes since error: %v", err)
				c.send <- ServerMessage{Type: "error", DocID: c.docID, Content: "CATCH_UP_FAILED"}
				continue
			}
			head := clientMessage.RevNum
			if len(changes) > 0 {
				head = changes[len(changes)-1].RevNum
			}
			c.send <- ServerMessage{Type: "joinDocument", DocID: c.docID, RevNum: head, Changes: changes,
				Content: "Document " + c.docID + " joined by user " + strconv.FormatUint(c.userID, 10)}

		case "show_alive_members":
			members, err := c.hub.presence.AliveMembers(ctx, c.docID)
			if err != nil {
				log.Printf("get alive members error: %v", err)
			}
			c.send <- ServerMessage{Type: "show_alive_members", Members: toWireMembers(members)}

		case "op_submit":
			c.handleOpSubmit(ctx, OpSubmitMessage{
				Type:       clientMessage.Type,
				DocID:      clientMessage.DocID,
				BaseRevNum: clientMessage.BaseRevNum,
				ClientID:   clientMessage.ClientID,
				ClientSeq:  clientMessage.ClientSeq,
				Ops:        clientMessage.Ops,
			})

		case "caret":
			if err := c.hub.presence.SetCaret(ctx, c.docID, c.userID, clientMessage.Caret, presenceTTL); err != nil {
				log.Printf("set caret error: %v", err)
			}
			c.hub.BroadcastCaret(c.docID, c, c.userID, clientMessage.Caret)

		case "waitRevision":
			// 长轮询：阻塞到头修订追上目标再回包
			rev, err := c.svc.WaitForRevision(ctx, clientMessage.DocID, clientMessage.RevNum, 0)
			if err != nil {
				c.send <- ServerMessage{Type: "error", DocID: clientMessage.DocID, Content: err.Error()}
				continue
			}
			c.send <- ServerMessage{Type: "waitRevision", DocID: clientMessage.DocID, RevNum: rev}

		case "saveDocument":
			if err := c.svc.SaveSnapshot(ctx, clientMessage.DocID); err != nil {
				log.Printf("save document error: %v", err)
				c.send <- ServerMessage{Type: "saveDocument", Content: "Document " + clientMessage.DocID + " save failed"}
				continue
			}
			c.send <- ServerMessage{Type: "saveDocument", Content: "Document " + clientMessage.DocID + " saved"}

		case "loadDocumentContent":
			content, revNum, err := c.svc.LoadDocumentContent(ctx, clientMessage.DocID)
			if err != nil {
				log.Printf("load document content error: %v", err)
				continue
			}
			c.send <- ServerMessage{Type: "loadDocumentContent", DocID: clientMessage.DocID, Content: content, RevNum: revNum}

		default:
			// 忽略未知类型，回一条提示
			c.send <- ServerMessage{Type: "ignored", Content: "Unknown message type"}
		}
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的出站消息
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}

func toWireMembers(members []cache.PresenceMember) []PresenceMember {
	out := make([]PresenceMember, len(members))
	for i, m := range members {
		out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
	}
	return out
}
