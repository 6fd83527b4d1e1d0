package delta

import "math"

// opIter 支持“部分消费”一个操作：compose/transform 经常只吃掉某个
// retain/insert 的前半段，剩下的留给下一轮。
type opIter struct {
	ops    []Op
	idx    int
	offset int // 当前操作内已消费的长度
}

func newOpIter(d Delta) *opIter {
	return &opIter{ops: d}
}

func (it *opIter) hasNext() bool {
	return it.idx < len(it.ops)
}

// peekKind：迭代器耗尽后返回 KindRetain（越过末尾的部分视为恒等保留）。
func (it *opIter) peekKind() Kind {
	if !it.hasNext() {
		return KindRetain
	}
	return it.ops[it.idx].Kind
}

// peekLen 返回当前操作剩余的可消费长度；耗尽时返回“无穷大”。
func (it *opIter) peekLen() int {
	if !it.hasNext() {
		return math.MaxInt
	}
	op := it.ops[it.idx]
	n := opBaseLen(op)
	if n == 0 {
		n = opTargetLen(op)
	}
	return n - it.offset
}

// next 消费当前操作的前 n 个单位并返回对应的子操作。
// n < 0 表示整个剩余部分。迭代器耗尽时返回等长的 retain。
func (it *opIter) next(n int) Op {
	if !it.hasNext() {
		if n < 0 {
			n = math.MaxInt
		}
		return Op{Kind: KindRetain, Count: n}
	}
	op := it.ops[it.idx]
	remain := it.peekLen()
	if n < 0 || n >= remain {
		n = remain
		it.idx++
		defer func() { it.offset = 0 }()
	}
	offset := it.offset
	if n < remain {
		it.offset += n
	}

	switch op.Kind {
	case KindRetain:
		return Op{Kind: KindRetain, Count: n, Attrs: op.Attrs}
	case KindDelete:
		return Op{Kind: KindDelete, Count: n}
	case KindInsert:
		runes := []rune(op.Text)
		return Op{Kind: KindInsert, Text: string(runes[offset : offset+n]), Attrs: op.Attrs}
	default: // embed 长度固定为 1，不存在部分消费
		return op
	}
}
