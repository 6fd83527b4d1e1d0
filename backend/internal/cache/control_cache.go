package cache

import (
	"container/list"
	"context"
	"sync"

	"syncServer/backend/internal/revision"
)

// ControlCache 维护 docID → 唯一存活 Control 的映射。
// 同一文档任意时刻最多一个 Control 实例（进程内的串行化依赖这一点），
// 引用计数为 0 的条目按 LRU 淘汰，淘汰时 Close 掉底层 Control。
// 被句柄引用（refCount > 0）的条目永不淘汰，容量只是软上限。
type ControlCache struct {
	factory  func(docID string) *revision.Control
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // 队首最新，队尾最旧
}

type cacheEntry struct {
	docID    string
	ctrl     *revision.Control
	refCount int
	ready    chan struct{} // Init 完成后关闭
	initErr  error
}

// Handle 是对缓存内 Control 的计数引用。用完必须 Release，
// 否则条目会被永久钉住。重复 Release 是无害的。
type Handle struct {
	cache   *ControlCache
	entry   *cacheEntry
	release sync.Once
}

func (h *Handle) Control() *revision.Control { return h.entry.ctrl }

func (h *Handle) DocID() string { return h.entry.docID }

func (h *Handle) Release() {
	h.release.Do(func() {
		h.cache.mu.Lock()
		h.entry.refCount--
		h.cache.mu.Unlock()
	})
}

func NewControlCache(capacity int, factory func(docID string) *revision.Control) *ControlCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &ControlCache{
		factory:  factory,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get 返回 docID 对应的已初始化 Control 的句柄。
// 条目不存在时由本次调用负责创建并 Init；并发的 Get 等同一次 Init
// 完成（双检锁 + ready 通道，Init 不持缓存锁）。
func (c *ControlCache) Get(ctx context.Context, docID string) (*Handle, error) {
	c.mu.Lock()
	if el, ok := c.entries[docID]; ok {
		e := el.Value.(*cacheEntry)
		e.refCount++
		c.lru.MoveToFront(el)
		c.mu.Unlock()
		return c.awaitReady(ctx, e)
	}

	e := &cacheEntry{
		docID:    docID,
		ctrl:     c.factory(docID),
		refCount: 1,
		ready:    make(chan struct{}),
	}
	c.entries[docID] = c.lru.PushFront(e)
	c.evictLocked()
	c.mu.Unlock()

	e.initErr = e.ctrl.Init(ctx)
	close(e.ready)
	if e.initErr != nil {
		// 初始化失败的条目不留在缓存里，下次 Get 重新来过
		c.mu.Lock()
		if el, ok := c.entries[docID]; ok && el.Value.(*cacheEntry) == e {
			c.lru.Remove(el)
			delete(c.entries, docID)
		}
		c.mu.Unlock()
		e.ctrl.Close()
		return nil, e.initErr
	}
	return &Handle{cache: c, entry: e}, nil
}

func (c *ControlCache) awaitReady(ctx context.Context, e *cacheEntry) (*Handle, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		c.mu.Lock()
		e.refCount--
		c.mu.Unlock()
		return nil, ctx.Err()
	}
	if e.initErr != nil {
		c.mu.Lock()
		e.refCount--
		c.mu.Unlock()
		return nil, e.initErr
	}
	return &Handle{cache: c, entry: e}, nil
}

// evictLocked 从队尾开始淘汰引用计数为 0 的条目，直到容量达标。
// 全部被钉住时什么都不做（超容量运行，不阻塞调用方）。
func (c *ControlCache) evictLocked() {
	for el := c.lru.Back(); el != nil && c.lru.Len() > c.capacity; {
		prev := el.Prev()
		e := el.Value.(*cacheEntry)
		if e.refCount == 0 {
			c.lru.Remove(el)
			delete(c.entries, e.docID)
			e.ctrl.Close()
		}
		el = prev
	}
}

// Len 返回当前缓存条目数，只用于观测。
func (c *ControlCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close 关闭所有缓存的 Control 并清空缓存。
func (c *ControlCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.lru.Front(); el != nil; el = el.Next() {
		el.Value.(*cacheEntry).ctrl.Close()
	}
	c.lru.Init()
	c.entries = make(map[string]*list.Element)
}
