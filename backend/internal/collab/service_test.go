package collab

import (
	"context"
	"errors"
	"testing"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/filestore"
	"syncServer/backend/internal/ot/delta"
	"syncServer/backend/internal/revision"
)

type fakeArchive struct {
	docID   string
	revNum  int
	content string
}

func (f *fakeArchive) SaveDocumentSnapshot(ctx context.Context, docID string, revNum int, content string) error {
	f.docID, f.revNum, f.content = docID, revNum, content
	return nil
}

func newTestEngine(t *testing.T, archive SnapshotArchive) *Engine {
	t.Helper()
	store, err := filestore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	controls := cache.NewControlCache(8, func(docID string) *revision.Control {
		return revision.NewBodyControl(docID, store, revision.DefaultOptions(), false)
	})
	return NewEngine(controls, archive, nil, nil, nil)
}

func TestEngine_SubmitAndRebase(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	op1, err := e.Submit(ctx, "doc1", 1, 0, "c1", 1, delta.Delta{}.Insert("Hi", nil))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if op1.RevNum != 1 || op1.OperationID == "" {
		t.Fatalf("AppliedOp = %+v", op1)
	}

	// 第二个客户端还基于修订 0 提交，应当被 rebase 到修订 2
	op2, err := e.Submit(ctx, "doc1", 2, 0, "c2", 1, delta.Delta{}.Insert("yo ", nil))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if op2.RevNum != 2 {
		t.Fatalf("RevNum = %d, want 2", op2.RevNum)
	}
	if op2.OperationID == op1.OperationID {
		t.Fatal("OperationID 重复")
	}
	// rebase 之后 "Hi" 在前（先落盘者优先）
	want := delta.Delta{}.Retain(2, nil).Insert("yo ", nil)
	if !op2.Delta.Equal(want) {
		t.Fatalf("rebase 后的 delta = %+v, want %+v", op2.Delta, want)
	}

	text, rev, err := e.LoadDocumentContent(ctx, "doc1")
	if err != nil {
		t.Fatalf("LoadDocumentContent() error = %v", err)
	}
	if text != "Hiyo " || rev != 2 {
		t.Fatalf("内容 = (%q, %d), want (%q, 2)", text, rev, "Hiyo ")
	}
}

func TestEngine_DuplicateClientSeq(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := e.Submit(ctx, "doc1", 1, 0, "c1", 5, delta.Delta{}.Insert("a", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	_, err := e.Submit(ctx, "doc1", 1, 1, "c1", 5, delta.Delta{}.Insert("b", nil))
	if !errors.Is(err, ErrDuplicateOrOutOfOrder) {
		t.Fatalf("err = %v, want ErrDuplicateOrOutOfOrder", err)
	}
	// 失败的提交不占序号，换个序号能继续
	if _, err := e.Submit(ctx, "doc1", 1, 1, "c1", 6, delta.Delta{}.Insert("b", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestEngine_ChangesSince(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	texts := []string{"a", "b", "c"}
	for i, s := range texts {
		if _, err := e.Submit(ctx, "doc1", 1, i, "c1", uint64(i+1), delta.Delta{}.Retain(i, nil).Insert(s, nil)); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}

	changes, err := e.ChangesSince(ctx, "doc1", 1, 0)
	if err != nil {
		t.Fatalf("ChangesSince() error = %v", err)
	}
	if len(changes) != 2 || changes[0].RevNum != 2 || changes[1].RevNum != 3 {
		t.Fatalf("changes = %+v", changes)
	}

	limited, err := e.ChangesSince(ctx, "doc1", 0, 1)
	if err != nil {
		t.Fatalf("ChangesSince() error = %v", err)
	}
	if len(limited) != 1 || limited[0].RevNum != 1 {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestEngine_SaveSnapshot(t *testing.T) {
	archive := &fakeArchive{}
	e := newTestEngine(t, archive)
	ctx := context.Background()

	if _, err := e.Submit(ctx, "doc1", 1, 0, "c1", 1, delta.Delta{}.Insert("Hi there", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := e.SaveSnapshot(ctx, "doc1"); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if archive.docID != "doc1" || archive.revNum != 1 || archive.content != "Hi there" {
		t.Fatalf("归档 = %+v", archive)
	}
}

func TestEngine_Validate(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := e.Submit(ctx, "doc1", 1, 0, "c1", 1, delta.Delta{}.Insert("x", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	status, err := e.Validate(ctx, "doc1")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if status != revision.StatusOK {
		t.Fatalf("status = %q, want %q", status, revision.StatusOK)
	}
}
