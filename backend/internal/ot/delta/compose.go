package delta

// Compose 把先后两次变换 a、b 合并成一个净效果相同的 delta：
// apply(apply(doc, a), b) == apply(doc, Compose(a, b))。
// 满足结合律；空 delta 是单位元。
// 末尾省略的 retain 视为隐式恒等（delta 通常只写到最后一处编辑为止），
// 所以这里不做长度越界判断；针对真实文档体的越界由 ApplyToDocument 把关。
func Compose(a, b Delta) (Delta, error) {
	if err := a.Check(); err != nil {
		return nil, err
	}
	if err := b.Check(); err != nil {
		return nil, err
	}

	itA, itB := newOpIter(a), newOpIter(b)
	out := Delta{}
	for itA.hasNext() || itB.hasNext() {
		// b 的 insert/embed 发生在 a 的产出之上，原样进入结果
		if k := itB.peekKind(); k == KindInsert || k == KindEmbed {
			out = out.Push(itB.next(-1))
			continue
		}
		// a 删掉的内容 b 看不见，原样进入结果
		if itA.peekKind() == KindDelete {
			out = out.Push(itA.next(-1))
			continue
		}
		if !itB.hasNext() {
			// b 已耗尽，a 的剩余产出原样保留
			out = out.Push(itA.next(-1))
			continue
		}

		n := itA.peekLen()
		if m := itB.peekLen(); m < n {
			n = m
		}
		opA, opB := itA.next(n), itB.next(n)

		switch opB.Kind {
		case KindRetain:
			// b 保留 a 的产出；b 的属性覆盖 a 的属性
			merged := opA
			merged.Attrs = mergeAttrs(opA.Attrs, opB.Attrs)
			out = out.Push(merged)
		case KindDelete:
			// b 删除 a 的产出：a 原有内容（retain）要在基文档上真删；
			// a 刚插入的内容（insert/embed）和删除相互抵消，不产出任何操作
			if opA.Kind == KindRetain {
				out = out.Push(Op{Kind: KindDelete, Count: n})
			}
		}
	}
	return out.chop(), nil
}
