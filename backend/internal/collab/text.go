package collab

import (
	"fmt"

	"syncServer/backend/internal/ot/delta"
)

// TextBuffer 是文档正文的纯文本投影。富文本属性在这一层丢弃，
// 嵌入对象占一个 U+FFFC 槽位，逻辑长度和 delta 的 rune 长度一致。
type TextBuffer interface {
	Len() int
	Apply(d delta.Delta) error
	String() string
}

// 嵌入对象在纯文本投影里的占位符
const embedRune = '￼'

type spanBuf int

const (
	//iota：在 const (...) 里从 0 开始自动递增。这里：bufOriginal = 0, bufAdded = 1
	bufOriginal spanBuf = iota
	bufAdded
)

// span 是指向某个底层缓冲区的一段切片
type span struct {
	buf    spanBuf
	offset int
	length int
}

// SpanTable 是 piece-table 式的文本缓冲：初始文本进 original，
// 所有插入只往 added 末尾追加，编辑操作只改 span 列表，
// 两个底层缓冲区永不搬移。
type SpanTable struct {
	original []rune
	added    []rune
	spans    []span
}

func NewSpanTable(initial string) *SpanTable {
	r := []rune(initial)
	st := &SpanTable{original: r}
	if len(r) > 0 {
		st.spans = []span{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return st
}

// NewSpanTableFromDelta 把文档态 delta 投影成文本缓冲。
func NewSpanTableFromDelta(d delta.Delta) (*SpanTable, error) {
	if !d.IsDocument() {
		return nil, fmt.Errorf("%w: 非文档态 delta 不能做文本投影", delta.ErrBadDelta)
	}
	st := NewSpanTable("")
	if err := st.Apply(d); err != nil {
		return nil, err
	}
	return st, nil
}

func (st *SpanTable) Len() int {
	n := 0
	for _, s := range st.spans {
		n += s.length
	}
	return n
}

func (st *SpanTable) String() string {
	out := make([]rune, 0, st.Len())
	for _, s := range st.spans {
		switch s.buf {
		case bufOriginal:
			out = append(out, st.original[s.offset:s.offset+s.length]...)
		case bufAdded:
			out = append(out, st.added[s.offset:s.offset+s.length]...)
		}
	}
	return string(out)
}

// Apply 按 delta 语义推进缓冲：
// retain 移动游标，insert/embed 走插入流程，delete 走删除流程。
func (st *SpanTable) Apply(d delta.Delta) error {
	if err := d.Check(); err != nil {
		return err
	}
	if d.BaseLen() > st.Len() {
		return fmt.Errorf("%w: delta 基准 %d 超过缓冲长度 %d", delta.ErrBadDelta, d.BaseLen(), st.Len())
	}
	pos := 0
	for _, op := range d {
		switch op.Kind {
		case delta.KindRetain:
			pos += op.Count

		case delta.KindInsert:
			pos = st.insertAt(pos, []rune(op.Text))

		case delta.KindEmbed:
			pos = st.insertAt(pos, []rune{embedRune})

		case delta.KindDelete:
			st.deleteAt(pos, op.Count)
		}
	}
	return nil
}

// insertAt 把 text 追加进 added 缓冲并在 pos 处拆 span 接入，
// 返回插入后的游标位置。
func (st *SpanTable) insertAt(pos int, text []rune) int {
	if len(text) == 0 {
		return pos
	}
	start := len(st.added)
	st.added = append(st.added, text...)
	fresh := span{buf: bufAdded, offset: start, length: len(text)}

	idx, offset := st.locate(pos)
	if idx >= len(st.spans) {
		st.spans = append(st.spans, fresh)
		return pos + len(text)
	}

	cur := st.spans[idx]
	left := span{buf: cur.buf, offset: cur.offset, length: offset}
	right := span{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

	// 只重建目标 span 附近，其余整段搬过来
	next := make([]span, 0, len(st.spans)+2)
	next = append(next, st.spans[:idx]...)
	if left.length > 0 {
		next = append(next, left)
	}
	next = append(next, fresh)
	if right.length > 0 {
		next = append(next, right)
	}
	next = append(next, st.spans[idx+1:]...)
	st.spans = next
	return pos + len(text)
}

// deleteAt 从 pos 开始删 count 个 rune，跨 span 时逐段吃掉。
func (st *SpanTable) deleteAt(pos, count int) {
	remain := count
	idx, offset := st.locate(pos)

	for remain > 0 && idx < len(st.spans) {
		cur := &st.spans[idx]
		can := cur.length - offset
		if can <= 0 {
			idx++
			offset = 0
			continue
		}

		take := remain
		if take > can {
			take = can
		}

		if offset == 0 && take == cur.length {
			// 整段删除，idx 原地指向下一段
			st.spans = append(st.spans[:idx], st.spans[idx+1:]...)
			offset = 0
		} else {
			leftLen := offset
			rightLen := cur.length - offset - take

			next := make([]span, 0, len(st.spans)+1)
			next = append(next, st.spans[:idx]...)
			if leftLen > 0 {
				next = append(next, span{buf: cur.buf, offset: cur.offset, length: leftLen})
			}
			if rightLen > 0 {
				next = append(next, span{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
			}
			next = append(next, st.spans[idx+1:]...)
			st.spans = next
			// remain 没删完时 take==can，右段必为空，
			// 下一轮 can<=0 的分支会自动跳到下一个 span
		}

		remain -= take
	}
}

// locate 把逻辑位置 pos 换算成 (span 下标, span 内偏移)
func (st *SpanTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, s := range st.spans {
		if pos < cur+s.length {
			return i, pos - cur
		}
		cur += s.length
	}
	return len(st.spans), 0
}
