package revision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"syncServer/backend/internal/doc"
	"syncServer/backend/internal/filestore"
	"syncServer/backend/internal/ot/delta"
)

// Latest 是 GetSnapshot 的哨兵值，表示“当前最新修订”。
const Latest = -1

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

// Status 是一致性巡检的结果，巡检本身永不修改状态。
type Status string

const (
	StatusOK           Status = "ok"
	StatusNeedsRewrite Status = "needsRewrite"
	StatusCorrupt      Status = "corrupt"
)

// ContentHandler 是控制子类型的能力接口（正文控制、元数据控制等
// 共用同一套乐观重试骨架，差异用组合注入，不搞继承）。
type ContentHandler interface {
	// AfterInit 在首修订建立之后执行一次，可用来预热派生索引。
	AfterInit(ctx context.Context, c *Control) error
	// Validate 校验一次应用之后的文档体；失败的变更不会落盘。
	Validate(body delta.Delta) error
}

type Options struct {
	MaxRetries         int           // 乐观重试上限，超过报 ErrTooMuchContention
	WaitTimeout        time.Duration // WhenRevNum 的默认等待上限
	MaxDocumentSize    int           // 文档体长度上限（rune），0 表示不限
	MaxTransformLength int           // 单个 delta 产出长度上限，0 表示不限
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:         10,
		WaitTimeout:        30 * time.Second,
		MaxDocumentSize:    10_000_000,
		MaxTransformLength: 50_000,
	}
}

// CorrectedChange 是实际落盘的变更。Delta 可能不同于调用方提交的
// 那份（输了竞争时会被 rebase），调用方拿它去修正自己的本地推测状态。
type CorrectedChange struct {
	RevNum int         `json:"revNum"`
	Delta  delta.Delta `json:"delta"`
}

// Control 拥有单个文档“修订号 → 变更/快照”的权威映射。
// 同一文档的所有 ApplyChange 在 c.mu 上串行（进程内的串行化点）；
// 跨进程竞争交给存储层的 push 前置条件兜底。
type Control struct {
	docID   string
	store   filestore.Store
	handler ContentHandler
	opts    Options

	mu         sync.Mutex // 串行化点：state、headRevNum、整个 append 流程
	state      State
	headRevNum int

	cacheMu sync.RWMutex        // 变更缓存自己的锁（条目不可变，读多写少）
	changes map[int]doc.Change

	folder doc.Folder
	flight singleflight.Group // 并发请求同一快照时合并为一次折叠
}

func NewControl(docID string, store filestore.Store, handler ContentHandler, opts Options) *Control {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultOptions().WaitTimeout
	}
	return &Control{
		docID:   docID,
		store:   store,
		handler: handler,
		opts:    opts,
		changes: make(map[int]doc.Change),
	}
}

func (c *Control) DocID() string { return c.docID }

// Init 完成 Uninitialized → Ready：读出修订 0，不存在就创建。
// 与其他进程的创建竞争通过 CheckPathAbsent 解决，输了就改读。
func (c *Control) Init(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	}

	res, err := c.store.Transact(ctx, c.docID, filestore.NewSpec(filestore.ReadRevNum()))
	if err != nil {
		c.mu.Unlock()
		return err
	}
	head := res.RevNum
	if head < 0 {
		first := doc.FirstChange()
		b, merr := json.Marshal(first)
		if merr != nil {
			c.mu.Unlock()
			return merr
		}
		_, err = c.store.Transact(ctx, c.docID, filestore.NewSpec(
			filestore.CheckPathAbsent(changePath(0)),
			filestore.WritePath(changePath(0), b),
			filestore.WriteRevNum(0),
		))
		switch {
		case err == nil:
			head = 0
		case errors.Is(err, filestore.ErrRevisionMismatch):
			// 别的进程抢先创建了，读它的结果
			res, err = c.store.Transact(ctx, c.docID, filestore.NewSpec(filestore.ReadRevNum()))
			if err != nil {
				c.mu.Unlock()
				return err
			}
			head = res.RevNum
		default:
			c.mu.Unlock()
			return err
		}
	}

	c.headRevNum = head
	c.state = StateReady
	c.cacheChange(doc.FirstChange())
	c.mu.Unlock()

	if c.handler != nil {
		return c.handler.AfterInit(ctx, c)
	}
	return nil
}

// Close 终止本实例。已落盘的历史不受影响。
func (c *Control) Close() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

func (c *Control) checkReady() error {
	switch c.state {
	case StateUninitialized:
		return fmt.Errorf("control 未初始化: doc=%s", c.docID)
	case StateClosed:
		return ErrClosed
	}
	return nil
}

// CurrentRevNum 从存储读权威头修订号，并同步进程内缓存。
func (c *Control) CurrentRevNum(ctx context.Context) (int, error) {
	c.mu.Lock()
	if err := c.checkReady(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.mu.Unlock()

	res, err := c.store.Transact(ctx, c.docID, filestore.NewSpec(filestore.ReadRevNum()))
	if err != nil {
		return 0, err
	}
	c.noteHead(res.RevNum)
	return res.RevNum, nil
}

func (c *Control) noteHead(n int) {
	c.mu.Lock()
	if n > c.headRevNum {
		c.headRevNum = n
	}
	c.mu.Unlock()
}

// ChangeAt 读取指定修订的变更。条目不可变，读到即永久缓存。
func (c *Control) ChangeAt(ctx context.Context, n int) (doc.Change, error) {
	if n < 0 {
		return doc.Change{}, fmt.Errorf("%w: revNum=%d", ErrRevisionNotAvailable, n)
	}
	c.cacheMu.RLock()
	ch, ok := c.changes[n]
	c.cacheMu.RUnlock()
	if ok {
		return ch, nil
	}

	res, err := c.store.Transact(ctx, c.docID, filestore.NewSpec(filestore.ReadPath(changePath(n))))
	if err != nil {
		return doc.Change{}, err
	}
	ch, err = decodeChange(res.Data[changePath(n)], n)
	if err != nil {
		return doc.Change{}, err
	}
	c.cacheChange(ch)
	return ch, nil
}

// GetSnapshot 返回修订 n（或 Latest）处的快照。并发请求同一修订时，
// singleflight 合并为一次折叠/读取。返回的快照永不变化。
func (c *Control) GetSnapshot(ctx context.Context, n int) (doc.Snapshot, error) {
	c.mu.Lock()
	if err := c.checkReady(); err != nil {
		c.mu.Unlock()
		return doc.Snapshot{}, err
	}
	head := c.headRevNum
	c.mu.Unlock()

	if n == Latest {
		var err error
		if head, err = c.CurrentRevNum(ctx); err != nil {
			return doc.Snapshot{}, err
		}
		n = head
	}
	if n < 0 {
		return doc.Snapshot{}, fmt.Errorf("%w: revNum=%d", ErrRevisionNotAvailable, n)
	}
	if n > head {
		// 缓存的头修订可能落后，先同权威对一次
		fresh, err := c.CurrentRevNum(ctx)
		if err != nil {
			return doc.Snapshot{}, err
		}
		if n > fresh {
			return doc.Snapshot{}, fmt.Errorf("%w: revNum=%d 超过当前头修订 %d",
				ErrRevisionNotAvailable, n, fresh)
		}
	}

	v, err, _ := c.flight.Do(strconv.Itoa(n), func() (any, error) {
		return c.snapshotAt(ctx, n)
	})
	if err != nil {
		return doc.Snapshot{}, err
	}
	return v.(doc.Snapshot), nil
}

func (c *Control) snapshotAt(ctx context.Context, n int) (doc.Snapshot, error) {
	return c.folder.At(n, func(i int) (doc.Change, error) {
		return c.ChangeAt(ctx, i)
	})
}

// ApplyChange 是乐观提交协议的入口：
//  1. 读当前头修订 H
//  2. H == base：以 “修订号仍是 H” 为前置条件原子追加 H+1
//  3. H > base：拉取错过的变更，compose 成 missed，把 delta 按
//     side=Right rebase（先落地者优先），base := H 后重来
//  4. 前置条件失败（真实的跨进程竞争）按 3 处理
//  5. 重试 MaxRetries 次仍失败 → ErrTooMuchContention
//
// 成功时恰好追加一条变更；失败时无任何副作用。
func (c *Control) ApplyChange(ctx context.Context, baseRevNum int, d delta.Delta, authorID string) (CorrectedChange, error) {
	if err := d.Check(); err != nil {
		return CorrectedChange{}, err
	}
	if c.opts.MaxTransformLength > 0 && d.TargetLen() > c.opts.MaxTransformLength {
		return CorrectedChange{}, fmt.Errorf("%w: delta 产出 %d 超过上限 %d",
			delta.ErrBadDelta, d.TargetLen(), c.opts.MaxTransformLength)
	}
	if baseRevNum < 0 {
		return CorrectedChange{}, fmt.Errorf("%w: baseRevNum=%d", ErrRevisionNotAvailable, baseRevNum)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReady(); err != nil {
		return CorrectedChange{}, err
	}

	head, err := c.readHeadLocked(ctx)
	if err != nil {
		return CorrectedChange{}, err
	}
	if baseRevNum > head {
		return CorrectedChange{}, fmt.Errorf("%w: baseRevNum=%d 在未来（当前头修订 %d）",
			ErrRevisionNotAvailable, baseRevNum, head)
	}

	base := baseRevNum
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if head > base {
			missed, err := c.composeRangeLocked(ctx, base+1, head)
			if err != nil {
				return CorrectedChange{}, err
			}
			d, err = delta.Transform(missed, d, delta.Right)
			if err != nil {
				return CorrectedChange{}, err
			}
			base = head
		}

		// 先在内存里把结果算出来校验，坏 delta 不碰存储
		baseSnap, err := c.snapshotAt(ctx, base)
		if err != nil {
			return CorrectedChange{}, err
		}
		newBody, err := delta.ApplyToDocument(baseSnap.Contents, d)
		if err != nil {
			return CorrectedChange{}, err
		}
		if c.opts.MaxDocumentSize > 0 && newBody.TargetLen() > c.opts.MaxDocumentSize {
			return CorrectedChange{}, fmt.Errorf("%w: 文档长度 %d 超过上限 %d",
				delta.ErrBadDelta, newBody.TargetLen(), c.opts.MaxDocumentSize)
		}
		if c.handler != nil {
			if err := c.handler.Validate(newBody); err != nil {
				return CorrectedChange{}, err
			}
		}

		ch := doc.Change{RevNum: base + 1, Delta: d, AuthorID: authorID, Timestamp: time.Now().UTC()}
		b, err := json.Marshal(ch)
		if err != nil {
			return CorrectedChange{}, err
		}
		_, err = c.store.Transact(ctx, c.docID, filestore.NewSpec(
			filestore.CheckRevNum(base),
			filestore.WritePath(changePath(base+1), b),
			filestore.WriteRevNum(base+1),
		))
		switch {
		case err == nil:
			c.cacheChange(ch)
			c.headRevNum = base + 1
			return CorrectedChange{RevNum: base + 1, Delta: d}, nil
		case errors.Is(err, filestore.ErrRevisionMismatch):
			// 输给了另一个进程的写入，拉到新头修订后重试
			if head, err = c.readHeadLocked(ctx); err != nil {
				return CorrectedChange{}, err
			}
		default:
			return CorrectedChange{}, err
		}
	}
	return CorrectedChange{}, fmt.Errorf("%w: doc=%s base=%d", ErrTooMuchContention, c.docID, baseRevNum)
}

// WhenRevNum 阻塞到头修订 >= n 再返回当前头修订。
// 长轮询式的新修订通知靠它实现，不需要调用方忙等。
func (c *Control) WhenRevNum(ctx context.Context, n int, timeout time.Duration) (int, error) {
	c.mu.Lock()
	if err := c.checkReady(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.mu.Unlock()

	if timeout <= 0 {
		timeout = c.opts.WaitTimeout
	}
	res, err := c.store.Transact(ctx, c.docID, filestore.NewSpec(
		filestore.Timeout(timeout),
		filestore.WaitRevNum(n),
		filestore.ReadRevNum(),
	))
	if err != nil {
		return 0, err
	}
	c.noteHead(res.RevNum)
	return res.RevNum, nil
}

// ValidationStatus 巡检整条历史：变更缺失或解析失败算 corrupt，
// 折叠出的文档体没通过 handler 校验算 needsRewrite。只读，不修状态。
func (c *Control) ValidationStatus(ctx context.Context) Status {
	head, err := c.CurrentRevNum(ctx)
	if err != nil {
		return StatusCorrupt
	}
	body := delta.Delta{}
	for i := 0; i <= head; i++ {
		ch, err := c.ChangeAt(ctx, i)
		if err != nil {
			return StatusCorrupt
		}
		if body, err = delta.ApplyToDocument(body, ch.Delta); err != nil {
			return StatusCorrupt
		}
	}
	if c.handler != nil {
		if err := c.handler.Validate(body); err != nil {
			return StatusNeedsRewrite
		}
	}
	return StatusOK
}

// readHeadLocked：持 c.mu 时读权威头修订号。
func (c *Control) readHeadLocked(ctx context.Context) (int, error) {
	res, err := c.store.Transact(ctx, c.docID, filestore.NewSpec(filestore.ReadRevNum()))
	if err != nil {
		return 0, err
	}
	if res.RevNum > c.headRevNum {
		c.headRevNum = res.RevNum
	}
	return res.RevNum, nil
}

// composeRangeLocked 把 [from, to] 的变更折叠成一个 delta。
// 缓存里缺的修订用一个事务批量读齐。
func (c *Control) composeRangeLocked(ctx context.Context, from, to int) (delta.Delta, error) {
	var missing []filestore.TxOp
	c.cacheMu.RLock()
	for i := from; i <= to; i++ {
		if _, ok := c.changes[i]; !ok {
			missing = append(missing, filestore.ReadPath(changePath(i)))
		}
	}
	c.cacheMu.RUnlock()

	if len(missing) > 0 {
		res, err := c.store.Transact(ctx, c.docID, filestore.NewSpec(missing...))
		if err != nil {
			return nil, err
		}
		for path, raw := range res.Data {
			n, err := revOfChangePath(path)
			if err != nil {
				return nil, err
			}
			ch, err := decodeChange(raw, n)
			if err != nil {
				return nil, err
			}
			c.cacheChange(ch)
		}
	}

	out := delta.Delta{}
	for i := from; i <= to; i++ {
		ch, err := c.ChangeAt(ctx, i)
		if err != nil {
			return nil, err
		}
		next, err := delta.Compose(out, ch.Delta)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

func (c *Control) cacheChange(ch doc.Change) {
	c.cacheMu.Lock()
	if _, ok := c.changes[ch.RevNum]; !ok {
		c.changes[ch.RevNum] = ch
	}
	c.cacheMu.Unlock()
}

func decodeChange(raw []byte, want int) (doc.Change, error) {
	var ch doc.Change
	if err := json.Unmarshal(raw, &ch); err != nil {
		return doc.Change{}, fmt.Errorf("变更 %d 解析失败: %w", want, err)
	}
	if ch.RevNum != want {
		return doc.Change{}, fmt.Errorf("变更文件错位: 期望 %d 读到 %d", want, ch.RevNum)
	}
	if err := ch.Check(); err != nil {
		return doc.Change{}, err
	}
	return ch, nil
}

func changePath(n int) string {
	return fmt.Sprintf("change-%d", n)
}

func revOfChangePath(path string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(path, "change-%d", &n); err != nil {
		return 0, fmt.Errorf("非法变更路径 %q: %w", path, err)
	}
	return n, nil
}
