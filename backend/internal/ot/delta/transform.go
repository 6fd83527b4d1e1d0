package delta

// Side 决定同位置 insert 的先后：Left 一侧赢得位置优先权。
// 修订控制层对“晚到”的 delta 用 Right 做 rebase，即先落地者优先。
type Side int

const (
	Left Side = iota
	Right
)

// Transform 做经典 OT 变换：a、b 基于同一份文档并发产生，返回 b'，
// 使 Compose(a, b') 与 Compose(b, a') 得到同一份文档（a' 为对称结果）。
// side 是分配给 b 的一侧。
func Transform(a, b Delta, side Side) (Delta, error) {
	if err := a.Check(); err != nil {
		return nil, err
	}
	if err := b.Check(); err != nil {
		return nil, err
	}

	itA, itB := newOpIter(a), newOpIter(b)
	out := Delta{}
	for itA.hasNext() || itB.hasNext() {
		kA, kB := itA.peekKind(), itB.peekKind()
		aInserts := kA == KindInsert || kA == KindEmbed
		bInserts := kB == KindInsert || kB == KindEmbed

		if aInserts && (side == Right || !bInserts) {
			// a 的插入先落地，b' 要跳过它占的长度
			out = out.Retain(opTargetLen(itA.next(-1)), nil)
			continue
		}
		if bInserts {
			// b 的插入在此处赢得优先权（或 a 此处不是插入）
			out = out.Push(itB.next(-1))
			continue
		}
		if !itB.hasNext() {
			break // b 已耗尽，剩余部分是隐式保留
		}

		n := itA.peekLen()
		if m := itB.peekLen(); m < n {
			n = m
		}
		opA, opB := itA.next(n), itB.next(n)

		if opA.Kind == KindDelete {
			// a 已经删掉这段内容，b 对它的操作落空
			continue
		}
		switch opB.Kind {
		case KindDelete:
			out = out.Push(Op{Kind: KindDelete, Count: n})
		default:
			// 双方都保留：b 的属性意图原样带过去
			out = out.Retain(n, opB.Attrs)
		}
	}
	return out.chop(), nil
}
