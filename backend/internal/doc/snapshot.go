package doc

import (
	"fmt"
	"sync"

	"syncServer/backend/internal/ot/delta"
)

// Snapshot 是某个修订号处的完整文档体。历史只增不改，
// 所以 snapshot 一旦算出永远有效，可以随意缓存。
type Snapshot struct {
	RevNum   int         `json:"revNum"`
	Contents delta.Delta `json:"contents"`
}

// EmptySnapshot 返回修订 0 的空文档。
func EmptySnapshot() Snapshot {
	return Snapshot{RevNum: 0, Contents: delta.Delta{}}
}

// SnapshotAt 从头折叠 changes[0..n]，changes 下标即修订号。
// 不变式：snapshot(N).Contents == compose(change(0)..change(N))。
func SnapshotAt(changes []Change, n int) (Snapshot, error) {
	if n < 0 || n >= len(changes) {
		return Snapshot{}, fmt.Errorf("修订号 %d 超出范围 [0, %d]", n, len(changes)-1)
	}
	body := delta.Delta{}
	for i := 0; i <= n; i++ {
		if changes[i].RevNum != i {
			return Snapshot{}, fmt.Errorf("历史有缺口：位置 %d 的修订号是 %d", i, changes[i].RevNum)
		}
		next, err := delta.ApplyToDocument(body, changes[i].Delta)
		if err != nil {
			return Snapshot{}, fmt.Errorf("折叠修订 %d: %w", i, err)
		}
		body = next
	}
	return Snapshot{RevNum: n, Contents: body}, nil
}

// Folder 缓存最近一次折叠出的 snapshot。请求的修订号只要不小于
// 缓存，就从缓存继续往前折，避免每次都从修订 0 重算。
// 回退到更早修订时才整体重算（调用方绝大多数时候只看最新修订附近）。
type Folder struct {
	mu  sync.Mutex
	cur Snapshot
	ok  bool
}

// At 折叠到修订 n；缺的变更通过 get 拉取。
func (f *Folder) At(n int, get func(revNum int) (Change, error)) (Snapshot, error) {
	if n < 0 {
		return Snapshot{}, fmt.Errorf("修订号 %d 非法", n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	body := delta.Delta{}
	start := 0
	if f.ok && f.cur.RevNum <= n {
		if f.cur.RevNum == n {
			return f.cur, nil
		}
		body = f.cur.Contents
		start = f.cur.RevNum + 1
	}
	for i := start; i <= n; i++ {
		c, err := get(i)
		if err != nil {
			return Snapshot{}, err
		}
		if c.RevNum != i {
			return Snapshot{}, fmt.Errorf("期望修订 %d，读到 %d", i, c.RevNum)
		}
		next, err := delta.ApplyToDocument(body, c.Delta)
		if err != nil {
			return Snapshot{}, fmt.Errorf("折叠修订 %d: %w", i, err)
		}
		body = next
	}
	snap := Snapshot{RevNum: n, Contents: body}
	if !f.ok || snap.RevNum >= f.cur.RevNum {
		f.cur = snap
		f.ok = true
	}
	return snap, nil
}
