package delta

import "testing"

// 对称变换后双方必须收敛到同一份文档：
// Compose(a, Transform(a,b,Right)) == Compose(b, Transform(b,a,Left))
func checkConverge(t *testing.T, name string, a, b Delta) Delta {
	t.Helper()
	bp, err := Transform(a, b, Right)
	if err != nil {
		t.Fatalf("%s: Transform(a,b,Right) error = %v", name, err)
	}
	ap, err := Transform(b, a, Left)
	if err != nil {
		t.Fatalf("%s: Transform(b,a,Left) error = %v", name, err)
	}
	left := mustCompose(t, a, bp)
	right := mustCompose(t, b, ap)
	if !left.Equal(right) {
		t.Fatalf("%s: 未收敛\n a∘b' = %+v\n b∘a' = %+v", name, left, right)
	}
	return left
}

func TestTransform_Converges(t *testing.T) {
	cases := []struct {
		name string
		a, b Delta
	}{
		{"同位置插入", Delta{}.Retain(2, nil).Insert("A", nil), Delta{}.Retain(2, nil).Insert("B", nil)},
		{"插入与删除相交", Delta{}.Retain(1, nil).Insert("xy", nil), Delta{}.Delete(3)},
		{"删除区间重叠", Delta{}.Retain(1, nil).Delete(3), Delta{}.Retain(2, nil).Delete(3)},
		{"属性与删除", Delta{}.Retain(4, map[string]any{"bold": true}), Delta{}.Retain(2, nil).Delete(2)},
		{"插入与 embed", Delta{}.Embed("image", "u", nil), Delta{}.Retain(1, nil).Insert("z", nil)},
	}
	for _, tc := range cases {
		checkConverge(t, tc.name, tc.a, tc.b)
	}
}

func TestTransform_InsertTieBreak(t *testing.T) {
	// 同位置插入：先落地的一方（a，即 Left 侧）的文本排在前面
	base := Delta{}.Insert("Hi there", nil)
	a := Delta{}.Retain(8, nil).Insert("!", nil)
	b := Delta{}.Retain(8, nil).Insert("?", nil)

	merged := checkConverge(t, "tie-break", a, b)
	final := mustCompose(t, base, merged)
	if got := text(final); got != "Hi there!?" {
		t.Fatalf("最终文本 = %q, want %q", got, "Hi there!?")
	}
}

func TestTransform_AgainstDelete(t *testing.T) {
	// a 删掉了 b 要编辑的区域：b 的操作落空
	a := Delta{}.Delete(5)
	b := Delta{}.Retain(2, nil).Delete(2)
	bp, err := Transform(a, b, Right)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if !bp.Equal(Delta{}) {
		t.Fatalf("b' = %+v, want 空 delta", bp)
	}
}

func TestTransform_ShiftsPastInsert(t *testing.T) {
	// a 在开头插入 3 个字符，b 的删除要整体后移
	a := Delta{}.Insert("abc", nil)
	b := Delta{}.Delete(2)
	bp, err := Transform(a, b, Right)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	want := Delta{}.Retain(3, nil).Delete(2)
	if !bp.Equal(want) {
		t.Fatalf("b' = %+v, want %+v", bp, want)
	}
}

func TestTransform_BadInput(t *testing.T) {
	if _, err := Transform(Delta{Op{Kind: KindRetain, Count: -1}}, Delta{}, Right); err == nil {
		t.Fatalf("坏输入应当报错")
	}
}
