package collab

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/doc"
	"syncServer/backend/internal/ot/delta"
	"syncServer/backend/internal/revision"
)

// 协作引擎接口
type Service interface {
	// Submit 提交一份基于 baseRevNum 的 delta。返回的 AppliedOp 里的
	// Delta 是实际落盘的那份：输了竞争时已被 rebase，调用方用它修正
	// 本地的推测状态。
	Submit(ctx context.Context, docID string, authorID uint64,
		baseRevNum int, clientID string, clientSeq uint64,
		ops delta.Delta) (AppliedOp, error)

	CurrentRevision(ctx context.Context, docID string) (int, error)

	// ChangesSince 返回 (fromRevNum, head] 的变更，用于握手/追平
	ChangesSince(ctx context.Context, docID string, fromRevNum int, limit int) ([]doc.Change, error)

	// Snapshot 返回指定修订的文档态 delta；revNum 传 revision.Latest 取最新
	Snapshot(ctx context.Context, docID string, revNum int) (doc.Snapshot, error)

	// LoadDocumentContent 返回最新正文的纯文本投影和对应修订号
	LoadDocumentContent(ctx context.Context, docID string) (string, int, error)

	// WaitForRevision 阻塞到文档头修订 >= revNum
	WaitForRevision(ctx context.Context, docID string, revNum int, timeout time.Duration) (int, error)

	SaveSnapshot(ctx context.Context, docID string) error

	// Validate 巡检整条历史的一致性，只读
	Validate(ctx context.Context, docID string) (revision.Status, error)

	GetDocumentID(ctx context.Context, title string) (string, error)
	CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error)

	GetUserID(ctx context.Context, username string) (uint64, error)
}

// 快照归档接口，实现在 store 中
type SnapshotArchive interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, revNum int, content string) error
}

type DocumentRegistry interface {
	GetDocumentID(ctx context.Context, title string) (string, error)
	CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error)
}

type UserDirectory interface {
	GetUserID(ctx context.Context, username string) (uint64, error)
}

type AppliedOp struct {
	OperationID string // 本次操作的唯一ID（用于幂等/追踪）
	RevNum      int    // 落盘后的修订号
	AuthorID    uint64
	Delta       delta.Delta // 实际落盘的 delta（可能被 rebase 过）
	AppliedAt   time.Time
}

var ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")

// Engine 是 Service 的标准实现：修订历史走 ControlCache 里的
// Control（持久、可恢复），注册表/归档走关系库，事件走 Kafka。
type Engine struct {
	controls  *cache.ControlCache
	snapshots SnapshotArchive
	registry  DocumentRegistry
	users     UserDirectory

	dispatcher *KafkaDispatcher

	// 去重窗口：docID → clientID → 最近的最大 clientSeq
	mu    sync.Mutex
	dedup map[string]map[string]uint64
}

func NewEngine(controls *cache.ControlCache, snapshots SnapshotArchive,
	registry DocumentRegistry, users UserDirectory, dispatcher *KafkaDispatcher) *Engine {
	return &Engine{
		controls:   controls,
		snapshots:  snapshots,
		registry:   registry,
		users:      users,
		dispatcher: dispatcher,
		dedup:      make(map[string]map[string]uint64),
	}
}

func (e *Engine) Submit(ctx context.Context, docID string, authorID uint64,
	baseRevNum int, clientID string, clientSeq uint64, ops delta.Delta) (AppliedOp, error) {
	// 幂等/去重（最小实现：同一 clientId 只允许递增）
	if clientID != "" {
		e.mu.Lock()
		if last := e.dedup[docID][clientID]; clientSeq <= last {
			e.mu.Unlock()
			return AppliedOp{}, ErrDuplicateOrOutOfOrder
		}
		e.mu.Unlock()
	}

	h, err := e.controls.Get(ctx, docID)
	if err != nil {
		return AppliedOp{}, err
	}
	defer h.Release()

	cc, err := h.Control().ApplyChange(ctx, baseRevNum, ops, strconv.FormatUint(authorID, 10))
	if err != nil {
		return AppliedOp{}, err
	}

	// 落盘成功才推进去重窗口，失败的提交允许原样重试
	if clientID != "" {
		e.mu.Lock()
		if e.dedup[docID] == nil {
			e.dedup[docID] = make(map[string]uint64)
		}
		e.dedup[docID][clientID] = clientSeq
		e.mu.Unlock()
	}

	op := AppliedOp{
		OperationID: ulid.Make().String(),
		RevNum:      cc.RevNum,
		AuthorID:    authorID,
		Delta:       cc.Delta,
		AppliedAt:   time.Now().UTC(),
	}

	if e.dispatcher != nil {
		evt := ChangeAppliedEvent{
			EventType:   EventTypeChangeApplied,
			DocID:       docID,
			OperationID: op.OperationID,
			RevNum:      op.RevNum,
			AuthorID:    authorID,
			ClientID:    clientID,
			ClientSeq:   clientSeq,
			BaseRevNum:  baseRevNum,
			Delta:       op.Delta,
			AppliedAt:   op.AppliedAt,
		}
		// 入不了队就丢，广播不在提交的一致性保证里
		_ = e.dispatcher.Enqueue(ctx, evt)
	}

	return op, nil
}

func (e *Engine) CurrentRevision(ctx context.Context, docID string) (int, error) {
	h, err := e.controls.Get(ctx, docID)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	return h.Control().CurrentRevNum(ctx)
}

func (e *Engine) ChangesSince(ctx context.Context, docID string, fromRevNum int, limit int) ([]doc.Change, error) {
	h, err := e.controls.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	head, err := h.Control().CurrentRevNum(ctx)
	if err != nil {
		return nil, err
	}
	var out []doc.Change
	for n := fromRevNum + 1; n <= head; n++ {
		ch, err := h.Control().ChangeAt(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (e *Engine) Snapshot(ctx context.Context, docID string, revNum int) (doc.Snapshot, error) {
	h, err := e.controls.Get(ctx, docID)
	if err != nil {
		return doc.Snapshot{}, err
	}
	defer h.Release()
	return h.Control().GetSnapshot(ctx, revNum)
}

func (e *Engine) LoadDocumentContent(ctx context.Context, docID string) (string, int, error) {
	snap, err := e.Snapshot(ctx, docID, revision.Latest)
	if err != nil {
		return "", 0, err
	}
	st, err := NewSpanTableFromDelta(snap.Contents)
	if err != nil {
		return "", 0, err
	}
	return st.String(), snap.RevNum, nil
}

func (e *Engine) WaitForRevision(ctx context.Context, docID string, revNum int, timeout time.Duration) (int, error) {
	h, err := e.controls.Get(ctx, docID)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	return h.Control().WhenRevNum(ctx, revNum, timeout)
}

func (e *Engine) SaveSnapshot(ctx context.Context, docID string) error {
	if e.snapshots == nil {
		return errors.New("snapshot store not initialized")
	}
	content, revNum, err := e.LoadDocumentContent(ctx, docID)
	if err != nil {
		return err
	}
	return e.snapshots.SaveDocumentSnapshot(ctx, docID, revNum, content)
}

func (e *Engine) Validate(ctx context.Context, docID string) (revision.Status, error) {
	h, err := e.controls.Get(ctx, docID)
	if err != nil {
		return "", err
	}
	defer h.Release()
	return h.Control().ValidationStatus(ctx), nil
}

func (e *Engine) GetDocumentID(ctx context.Context, title string) (string, error) {
	if e.registry == nil {
		return "", errors.New("document store not initialized")
	}
	return e.registry.GetDocumentID(ctx, title)
}

func (e *Engine) CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error) {
	if e.registry == nil {
		return "", errors.New("document store not initialized")
	}
	return e.registry.CreateDocument(ctx, ownerID, title)
}

func (e *Engine) GetUserID(ctx context.Context, username string) (uint64, error) {
	if e.users == nil {
		return 0, errors.New("user store not initialized")
	}
	return e.users.GetUserID(ctx, username)
}
