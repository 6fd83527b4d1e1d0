package collab

import (
	"testing"

	"syncServer/backend/internal/ot/delta"
)

func TestSpanTable_BasicString(t *testing.T) {
	st := NewSpanTable("Hello world")
	if got := st.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if gotLen := st.Len(); gotLen != len([]rune("Hello world")) {
		t.Fatalf("Len() = %d, want %d", gotLen, len([]rune("Hello world")))
	}
}

func TestSpanTable_InsertMiddle(t *testing.T) {
	st := NewSpanTable("Hello world")

	d := delta.Delta{}.
		Retain(5, nil).               // 跳过 "Hello"
		Insert(" collaborative", nil) // 在 pos=5 插入

	if err := st.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello collaborative world"
	if got := st.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestSpanTable_DeleteMiddle(t *testing.T) {
	st := NewSpanTable("Hello collaborative world")

	// "Hello collaborative world"
	//  01234 5            18 ...
	//  保留 "Hello"，然后删 " collaborative"
	d := delta.Delta{}.Retain(5, nil).Delete(14)

	if err := st.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello world"
	if got := st.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestSpanTable_DeleteAcrossSpans(t *testing.T) {
	st := NewSpanTable("Hello world")
	if err := st.Apply(delta.Delta{}.Retain(5, nil).Insert(" big", nil)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// 删除跨越 original/add 两个缓冲的一段："lo big wo"
	if err := st.Apply(delta.Delta{}.Retain(3, nil).Delete(9)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := st.String(); got != "Helrld" {
		t.Fatalf("String() = %q, want %q", got, "Helrld")
	}
}

func TestSpanTable_EmbedProjectsToPlaceholder(t *testing.T) {
	st := NewSpanTable("ab")
	d := delta.Delta{}.Retain(1, nil).Embed("image", "x.png", nil)
	if err := st.Apply(d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := st.String(); got != "a￼b" {
		t.Fatalf("String() = %q, want %q", got, "a￼b")
	}
	if got := st.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
}

func TestSpanTable_FromDelta(t *testing.T) {
	body := delta.Delta{}.Insert("Hi there", map[string]any{"bold": true})
	st, err := NewSpanTableFromDelta(body)
	if err != nil {
		t.Fatalf("NewSpanTableFromDelta() error = %v", err)
	}
	// 属性在纯文本投影里被丢弃
	if got := st.String(); got != "Hi there" {
		t.Fatalf("String() = %q, want %q", got, "Hi there")
	}

	if _, err := NewSpanTableFromDelta(delta.Delta{}.Retain(3, nil)); err == nil {
		t.Fatal("非文档态 delta 应当报错")
	}
}

func TestSpanTable_OverlongDeltaRejected(t *testing.T) {
	st := NewSpanTable("Hi")
	if err := st.Apply(delta.Delta{}.Retain(10, nil).Insert("x", nil)); err == nil {
		t.Fatal("超出缓冲长度的 delta 应当报错")
	}
}
