package delta

import "fmt"

// Invert 返回撤销 d 的 delta，base 是 d 应用之前的完整文档体。
// 只用于冲突修正的报告路径，不承担 undo/redo。
func Invert(d, base Delta) (Delta, error) {
	if !base.IsDocument() {
		return nil, fmt.Errorf("%w: invert 的 base 不是 document 形", ErrBadDelta)
	}
	if err := d.Check(); err != nil {
		return nil, err
	}
	if d.BaseLen() > base.TargetLen() {
		return nil, fmt.Errorf("%w: invert 越界", ErrBadDelta)
	}

	out := Delta{}
	pos := 0 // 在 base 中的位置
	for _, op := range d {
		switch op.Kind {
		case KindInsert, KindEmbed:
			// 撤销插入 = 删除等长内容
			out = out.Delete(opTargetLen(op))
		case KindDelete:
			// 撤销删除 = 把 base 里被删的那段原样插回来
			for _, restored := range slice(base, pos, pos+op.Count) {
				out = out.Push(restored)
			}
			pos += op.Count
		case KindRetain:
			if op.Attrs == nil {
				out = out.Retain(op.Count, nil)
			} else {
				// 撤销属性修改 = 写回 base 上原来的属性值（缺失则置 nil 清除）
				for _, baseOp := range slice(base, pos, pos+op.Count) {
					out = out.Retain(opTargetLen(baseOp), invertAttrs(op.Attrs, baseOp.Attrs))
				}
			}
			pos += op.Count
		}
	}
	return out.chop(), nil
}

// slice 取文档体 [start, end) 区间的内容。
func slice(body Delta, start, end int) Delta {
	it := newOpIter(body)
	out := Delta{}
	pos := 0
	for it.hasNext() && pos < end {
		n := it.peekLen()
		op := it.next(n)
		if pos+n > start {
			lo, hi := 0, n
			if pos < start {
				lo = start - pos
			}
			if pos+n > end {
				hi = end - pos
			}
			out = out.Push(subOp(op, lo, hi))
		}
		pos += n
	}
	return out
}

func subOp(op Op, lo, hi int) Op {
	if op.Kind == KindInsert {
		runes := []rune(op.Text)
		return Op{Kind: KindInsert, Text: string(runes[lo:hi]), Attrs: op.Attrs}
	}
	return op // embed 不可分割
}

// invertAttrs：对 applied 中出现的每个键，恢复 base 上的旧值。
func invertAttrs(applied, base map[string]any) map[string]any {
	out := make(map[string]any, len(applied))
	for k := range applied {
		if v, ok := base[k]; ok {
			out[k] = v
		} else {
			out[k] = nil
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
