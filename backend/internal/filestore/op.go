package filestore

import (
	"context"
	"time"
)

// 事务操作分三类：
// - wait：阻塞到某个前置条件成立（带超时），不持有对其他事务可见的锁
// - push 前置条件：断言当前存储状态，不成立则整个事务失败、所有写入作废
// - pull / write：读出结果值、写入新值
// 一个 Spec 是这些操作的有序列表，作为一个原子单元提交。
type opKind int

const (
	kindTimeout opKind = iota
	kindWaitRevNum
	kindCheckPathPresent
	kindCheckPathAbsent
	kindCheckRevNum
	kindReadPath
	kindReadRevNum
	kindWritePath
	kindWriteRevNum
)

type TxOp struct {
	kind    opKind
	path    string
	revNum  int
	timeout time.Duration
	data    []byte
}

// Timeout 为整个事务设置上限；不设置时用实现方的默认值。
func Timeout(d time.Duration) TxOp { return TxOp{kind: kindTimeout, timeout: d} }

// WaitRevNum 阻塞到文档当前修订号 >= n（或超时失败）。
func WaitRevNum(n int) TxOp { return TxOp{kind: kindWaitRevNum, revNum: n} }

// CheckPathPresent / CheckPathAbsent / CheckRevNum 是 push 前置条件。
func CheckPathPresent(path string) TxOp { return TxOp{kind: kindCheckPathPresent, path: path} }
func CheckPathAbsent(path string) TxOp  { return TxOp{kind: kindCheckPathAbsent, path: path} }
func CheckRevNum(n int) TxOp            { return TxOp{kind: kindCheckRevNum, revNum: n} }

// ReadPath / ReadRevNum 是 pull 读取。
func ReadPath(path string) TxOp { return TxOp{kind: kindReadPath, path: path} }
func ReadRevNum() TxOp          { return TxOp{kind: kindReadRevNum} }

// WritePath / WriteRevNum 是写入。修订号指针只能通过 WriteRevNum 推进。
func WritePath(path string, data []byte) TxOp {
	return TxOp{kind: kindWritePath, path: path, data: data}
}
func WriteRevNum(n int) TxOp { return TxOp{kind: kindWriteRevNum, revNum: n} }

type Spec struct {
	ops []TxOp
}

func NewSpec(ops ...TxOp) Spec {
	return Spec{ops: ops}
}

// Result 是事务的 pull 结果。未执行 ReadRevNum 时 RevNum 为 -1。
type Result struct {
	RevNum int
	Data   map[string][]byte
}

// Store 是事务协议的唯一入口。同一 docID 上的事务彼此串行，
// “当前修订号 == N” 因此可以安全地当 compare-and-swap 键用。
type Store interface {
	Transact(ctx context.Context, docID string, spec Spec) (Result, error)
}
