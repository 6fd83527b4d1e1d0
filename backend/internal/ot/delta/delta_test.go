package delta

import (
	"errors"
	"testing"
)

// text 把文档形 delta 物化成纯文本，测试里比对用
func text(d Delta) string {
	out := ""
	for _, op := range d {
		if op.Kind == KindInsert {
			out += op.Text
		}
	}
	return out
}

func TestDelta_Lengths(t *testing.T) {
	d := Delta{}.Retain(5, nil).Insert("Hello", nil).Delete(3)
	if got := d.BaseLen(); got != 8 {
		t.Fatalf("BaseLen() = %d, want %d", got, 8)
	}
	if got := d.TargetLen(); got != 10 {
		t.Fatalf("TargetLen() = %d, want %d", got, 10)
	}
}

func TestDelta_PushMergesAdjacent(t *testing.T) {
	d := Delta{}.Insert("Hi", nil).Insert(" there", nil)
	if len(d) != 1 {
		t.Fatalf("len(d) = %d, want 1 (相邻 insert 应合并)", len(d))
	}
	if d[0].Text != "Hi there" {
		t.Fatalf("d[0].Text = %q, want %q", d[0].Text, "Hi there")
	}

	d = Delta{}.Delete(2).Delete(3)
	if len(d) != 1 || d[0].Count != 5 {
		t.Fatalf("delete 合并失败: %+v", d)
	}
}

func TestDelta_PushInsertBeforeDelete(t *testing.T) {
	// 规范形：同一位置“先插后删”
	d := Delta{}.Delete(3).Insert("X", nil)
	if d[0].Kind != KindInsert || d[1].Kind != KindDelete {
		t.Fatalf("规范形错误: %+v", d)
	}
}

func TestDelta_Check(t *testing.T) {
	bad := []Delta{
		{Op{Kind: KindRetain, Count: 0}},
		{Op{Kind: KindDelete, Count: -1}},
		{Op{Kind: KindInsert, Text: ""}},
		{Op{Kind: KindEmbed}},
		{Op{Kind: Kind("move"), Count: 1}},
	}
	for i, d := range bad {
		if err := d.Check(); !errors.Is(err, ErrBadDelta) {
			t.Fatalf("case %d: Check() = %v, want ErrBadDelta", i, err)
		}
	}
	ok := Delta{}.Retain(1, map[string]any{"bold": true}).Insert("a", nil).Embed("image", "u.png", nil)
	if err := ok.Check(); err != nil {
		t.Fatalf("Check() = %v, want nil", err)
	}
}

func TestDelta_IsDocument(t *testing.T) {
	if !(Delta{}.Insert("Hi\n", nil).Embed("image", "u", nil)).IsDocument() {
		t.Fatalf("纯 insert/embed 应当是 document 形")
	}
	if (Delta{}.Retain(1, nil).Insert("x", nil)).IsDocument() {
		t.Fatalf("含 retain 不应是 document 形")
	}
}

func TestApplyToDocument_DeleteBeyondEnd(t *testing.T) {
	body := Delta{}.Insert("Hello", nil)
	_, err := ApplyToDocument(body, Delta{}.Delete(10_000))
	if !errors.Is(err, ErrBadDelta) {
		t.Fatalf("越界删除 err = %v, want ErrBadDelta", err)
	}
}

func TestApplyToDocument_Basic(t *testing.T) {
	body := Delta{}.Insert("Hi", nil)
	out, err := ApplyToDocument(body, Delta{}.Retain(2, nil).Insert(" there", nil))
	if err != nil {
		t.Fatalf("ApplyToDocument() error = %v", err)
	}
	if got := text(out); got != "Hi there" {
		t.Fatalf("text = %q, want %q", got, "Hi there")
	}
}

func TestDelta_EndsWithNewline(t *testing.T) {
	if !(Delta{}).EndsWithNewline() {
		t.Fatalf("空文档应视为满足行结束符")
	}
	if (Delta{}.Insert("Hi", nil)).EndsWithNewline() {
		t.Fatalf("未以换行收尾却通过了")
	}
	if !(Delta{}.Insert("Hi\n", nil)).EndsWithNewline() {
		t.Fatalf("以换行收尾却未通过")
	}
}
