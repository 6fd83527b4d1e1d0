package doc

import (
	"fmt"
	"time"

	"syncServer/backend/internal/ot/delta"
)

// Change 是文档历史里的一个修订：对上一修订应用 Delta 得到本修订。
// 构造后不可变，按 (docID, revNum) 永久缓存。
type Change struct {
	RevNum    int         `json:"revNum"`
	Delta     delta.Delta `json:"delta"`
	AuthorID  string      `json:"authorId,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitzero"`
}

// FirstChange 返回修订 0 的合成首变更（空 delta，无作者无时间戳）。
func FirstChange() Change {
	return Change{RevNum: 0, Delta: delta.Delta{}}
}

// Check 校验修订号与 delta 的合法性。
func (c Change) Check() error {
	if c.RevNum < 0 {
		return fmt.Errorf("%w: revNum=%d", delta.ErrBadDelta, c.RevNum)
	}
	return c.Delta.Check()
}
