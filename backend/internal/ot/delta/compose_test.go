package delta

import "testing"

func mustCompose(t *testing.T, a, b Delta) Delta {
	t.Helper()
	out, err := Compose(a, b)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	return out
}

func TestCompose_Sequential(t *testing.T) {
	a := Delta{}.Insert("Hello world", nil)
	b := Delta{}.Retain(5, nil).Insert(" collaborative", nil)
	out := mustCompose(t, a, b)
	if got := text(out); got != "Hello collaborative world" {
		t.Fatalf("text = %q, want %q", got, "Hello collaborative world")
	}
}

func TestCompose_EmptyIsIdentity(t *testing.T) {
	a := Delta{}.Retain(2, nil).Insert("x", nil).Delete(1)
	if got := mustCompose(t, a, Delta{}); !got.Equal(a) {
		t.Fatalf("Compose(a, empty) = %+v, want a", got)
	}
	if got := mustCompose(t, Delta{}, a); !got.Equal(a) {
		t.Fatalf("Compose(empty, a) = %+v, want a", got)
	}
}

func TestCompose_InsertThenDeleteCancels(t *testing.T) {
	a := Delta{}.Retain(3, nil).Insert("abc", nil)
	b := Delta{}.Retain(3, nil).Delete(3)
	out := mustCompose(t, a, b)
	// a 刚插入的内容被 b 删掉，净效果为空
	if !out.Equal(Delta{}) {
		t.Fatalf("Compose = %+v, want 空 delta", out)
	}
}

func TestCompose_AttrsOverride(t *testing.T) {
	a := Delta{}.Insert("hi", map[string]any{"bold": true, "color": "red"})
	b := Delta{}.Retain(2, map[string]any{"color": "blue"})
	out := mustCompose(t, a, b)
	want := Delta{}.Insert("hi", map[string]any{"bold": true, "color": "blue"})
	if !out.Equal(want) {
		t.Fatalf("Compose = %+v, want %+v", out, want)
	}
}

func TestCompose_Associative(t *testing.T) {
	cases := []struct {
		name    string
		a, b, c Delta
	}{
		{
			name: "插入-编辑-删除",
			a:    Delta{}.Insert("Hello world\n", nil),
			b:    Delta{}.Retain(5, nil).Insert(",", nil).Delete(1),
			c:    Delta{}.Retain(2, nil).Delete(4),
		},
		{
			name: "属性叠加",
			a:    Delta{}.Insert("abcdef\n", nil),
			b:    Delta{}.Retain(3, map[string]any{"bold": true}),
			c:    Delta{}.Retain(1, nil).Retain(4, map[string]any{"italic": true}),
		},
		{
			name: "含 embed",
			a:    Delta{}.Insert("ab", nil).Embed("image", "u.png", nil).Insert("\n", nil),
			b:    Delta{}.Retain(2, nil).Delete(1).Insert("X", nil),
			c:    Delta{}.Delete(2).Insert("Y", nil),
		},
	}
	for _, tc := range cases {
		ab := mustCompose(t, tc.a, tc.b)
		bc := mustCompose(t, tc.b, tc.c)
		left := mustCompose(t, ab, tc.c)
		right := mustCompose(t, tc.a, bc)
		if !left.Equal(right) {
			t.Fatalf("%s: (a∘b)∘c = %+v, a∘(b∘c) = %+v", tc.name, left, right)
		}
	}
}
