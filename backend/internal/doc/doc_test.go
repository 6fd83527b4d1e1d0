package doc

import (
	"testing"

	"syncServer/backend/internal/ot/delta"
)

func history() []Change {
	return []Change{
		FirstChange(),
		{RevNum: 1, Delta: delta.Delta{}.Insert("Hi", nil), AuthorID: "alice"},
		{RevNum: 2, Delta: delta.Delta{}.Retain(2, nil).Insert(" there", nil), AuthorID: "bob"},
		{RevNum: 3, Delta: delta.Delta{}.Retain(8, nil).Insert("!\n", nil), AuthorID: "alice"},
	}
}

func bodyText(d delta.Delta) string {
	out := ""
	for _, op := range d {
		if op.Kind == delta.KindInsert {
			out += op.Text
		}
	}
	return out
}

func TestSnapshotAt(t *testing.T) {
	changes := history()
	wants := []string{"", "Hi", "Hi there", "Hi there!\n"}
	for n, want := range wants {
		snap, err := SnapshotAt(changes, n)
		if err != nil {
			t.Fatalf("SnapshotAt(%d) error = %v", n, err)
		}
		if snap.RevNum != n {
			t.Fatalf("RevNum = %d, want %d", snap.RevNum, n)
		}
		if got := bodyText(snap.Contents); got != want {
			t.Fatalf("rev %d 文本 = %q, want %q", n, got, want)
		}
	}
}

func TestSnapshotAt_GapDetected(t *testing.T) {
	changes := history()
	changes[2].RevNum = 5 // 人为制造缺口
	if _, err := SnapshotAt(changes, 3); err == nil {
		t.Fatalf("历史缺口应当报错")
	}
}

// Folder 折叠结果必须与从头重放完全一致
func TestFolder_MatchesReplay(t *testing.T) {
	changes := history()
	get := func(n int) (Change, error) { return changes[n], nil }

	f := &Folder{}
	// 先推进到 head，再回头要早期修订，最后再要 head
	for _, n := range []int{3, 1, 0, 2, 3} {
		fromFolder, err := f.At(n, get)
		if err != nil {
			t.Fatalf("Folder.At(%d) error = %v", n, err)
		}
		replayed, err := SnapshotAt(changes, n)
		if err != nil {
			t.Fatalf("SnapshotAt(%d) error = %v", n, err)
		}
		if !fromFolder.Contents.Equal(replayed.Contents) {
			t.Fatalf("rev %d: folder=%+v replay=%+v", n, fromFolder.Contents, replayed.Contents)
		}
	}
}

// 缓存生效时，Folder 不应重复拉取已折叠过的前缀
func TestFolder_ReusesPrefix(t *testing.T) {
	changes := history()
	calls := 0
	get := func(n int) (Change, error) {
		calls++
		return changes[n], nil
	}

	f := &Folder{}
	if _, err := f.At(2, get); err != nil {
		t.Fatalf("At(2) error = %v", err)
	}
	calls = 0
	if _, err := f.At(3, get); err != nil {
		t.Fatalf("At(3) error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("增量折叠拉取了 %d 次，want 1", calls)
	}
}

func TestFirstChange(t *testing.T) {
	c := FirstChange()
	if c.RevNum != 0 || !c.Delta.IsEmpty() {
		t.Fatalf("FirstChange() = %+v", c)
	}
	if err := c.Check(); err != nil {
		t.Fatalf("Check() = %v", err)
	}
}
