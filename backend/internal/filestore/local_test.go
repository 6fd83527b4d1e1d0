package filestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	return s
}

func TestTransact_WriteThenRead(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Transact(ctx, "doc1", NewSpec(
		CheckPathAbsent("change-0"),
		WritePath("change-0", []byte(`{"revNum":0}`)),
		WriteRevNum(0),
	))
	if err != nil {
		t.Fatalf("创建事务 error = %v", err)
	}

	res, err := s.Transact(ctx, "doc1", NewSpec(
		CheckPathPresent("change-0"),
		ReadPath("change-0"),
		ReadRevNum(),
	))
	if err != nil {
		t.Fatalf("读取事务 error = %v", err)
	}
	if res.RevNum != 0 {
		t.Fatalf("RevNum = %d, want 0", res.RevNum)
	}
	if got := string(res.Data["change-0"]); got != `{"revNum":0}` {
		t.Fatalf("Data = %q", got)
	}
}

func TestTransact_RevNumCAS(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Transact(ctx, "doc1", NewSpec(WriteRevNum(3))); err != nil {
		t.Fatalf("WriteRevNum error = %v", err)
	}

	// 前置条件错位：必须失败且写入不生效
	_, err := s.Transact(ctx, "doc1", NewSpec(
		CheckRevNum(2),
		WritePath("change-4", []byte("x")),
		WriteRevNum(4),
	))
	if !errors.Is(err, ErrRevisionMismatch) {
		t.Fatalf("err = %v, want ErrRevisionMismatch", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Expected != 2 || conflict.Current != 3 {
		t.Fatalf("冲突现场 = %+v", conflict)
	}
	if _, err := s.Transact(ctx, "doc1", NewSpec(CheckPathPresent("change-4"))); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("失败事务的写入泄漏了: %v", err)
	}

	// 条件正确时成功
	if _, err := s.Transact(ctx, "doc1", NewSpec(
		CheckRevNum(3),
		WritePath("change-4", []byte("x")),
		WriteRevNum(4),
	)); err != nil {
		t.Fatalf("合法 CAS error = %v", err)
	}
}

func TestTransact_WaitRevNumTimesOut(t *testing.T) {
	s := newStore(t)
	if _, err := s.Transact(context.Background(), "doc1", NewSpec(WriteRevNum(3))); err != nil {
		t.Fatalf("WriteRevNum error = %v", err)
	}

	start := time.Now()
	_, err := s.Transact(context.Background(), "doc1", NewSpec(
		Timeout(50*time.Millisecond),
		WaitRevNum(100),
	))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("等待了 %v，超时没有生效", elapsed)
	}
}

func TestTransact_WaitRevNumWakesUp(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if _, err := s.Transact(ctx, "doc1", NewSpec(WriteRevNum(0))); err != nil {
		t.Fatalf("WriteRevNum error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		res, err := s.Transact(ctx, "doc1", NewSpec(
			Timeout(5*time.Second),
			WaitRevNum(1),
			ReadRevNum(),
		))
		if err == nil && res.RevNum < 1 {
			err = errors.New("醒来时修订号还没到 1")
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := s.Transact(ctx, "doc1", NewSpec(CheckRevNum(0), WriteRevNum(1))); err != nil {
		t.Fatalf("推进修订 error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("等待者 error = %v", err)
	}
}

func TestTransact_PathAbsentRace(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if _, err := s.Transact(ctx, "doc1", NewSpec(WritePath("change-0", []byte("a")))); err != nil {
		t.Fatalf("WritePath error = %v", err)
	}
	_, err := s.Transact(ctx, "doc1", NewSpec(
		CheckPathAbsent("change-0"),
		WritePath("change-0", []byte("b")),
	))
	if !errors.Is(err, ErrRevisionMismatch) {
		t.Fatalf("err = %v, want ErrRevisionMismatch", err)
	}
}

func TestTransact_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	if _, err := s1.Transact(ctx, "doc1", NewSpec(WritePath("change-7", []byte("x")), WriteRevNum(7))); err != nil {
		t.Fatalf("写入 error = %v", err)
	}

	// 新的 store 实例要能从指针文件恢复修订号
	s2, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	res, err := s2.Transact(ctx, "doc1", NewSpec(ReadRevNum(), ReadPath("change-7")))
	if err != nil {
		t.Fatalf("重开读取 error = %v", err)
	}
	if res.RevNum != 7 {
		t.Fatalf("RevNum = %d, want 7", res.RevNum)
	}
}

func TestTransact_BadNames(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if _, err := s.Transact(ctx, "../evil", NewSpec(ReadRevNum())); err == nil {
		t.Fatalf("路径穿越 docID 应当被拒绝")
	}
	if _, err := s.Transact(ctx, "doc1", NewSpec(WritePath(revNumFile, []byte("9")))); err == nil {
		t.Fatalf("直接写修订号指针应当被拒绝")
	}
}
