package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 默认事务超时（主要约束 wait 类操作）
const DefaultTimeout = 10 * time.Second

// 修订号指针文件名。每个文档目录下一个，只通过 WriteRevNum 改写。
const revNumFile = "rev-num"

// LocalStore 是事务协议的参考实现：本地文件系统做持久层，
// 每个文档一个目录，内存里按文档维护一把锁 + 一个修订号广播通道。
// 同一文档的事务在 docState.mu 上串行，原子性由“检查和写入都在
// 这把锁内完成”保证。
type LocalStore struct {
	root           string
	defaultTimeout time.Duration

	mu   sync.Mutex
	docs map[string]*docState
}

type docState struct {
	mu     sync.Mutex
	revNum int // -1 表示文档还不存在
	// 修订号推进时 close 并换新，等待者据此醒来（避免 sync.Cond 没有超时的问题）
	watch chan struct{}
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: 创建存储根目录: %v", ErrStorageUnavailable, err)
	}
	return &LocalStore{
		root:           root,
		defaultTimeout: DefaultTimeout,
		docs:           make(map[string]*docState),
	}, nil
}

func (s *LocalStore) docDir(docID string) string {
	return filepath.Join(s.root, docID)
}

// doc 取（或初始化）文档的内存状态；首次访问时从指针文件恢复修订号。
func (s *LocalStore) doc(docID string) (*docState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.docs[docID]; d != nil {
		return d, nil
	}
	d := &docState{revNum: -1, watch: make(chan struct{})}
	b, err := os.ReadFile(filepath.Join(s.docDir(docID), revNumFile))
	switch {
	case err == nil:
		n, perr := strconv.Atoi(strings.TrimSpace(string(b)))
		if perr != nil {
			return nil, fmt.Errorf("%w: 修订号指针损坏 doc=%s: %v", ErrStorageUnavailable, docID, perr)
		}
		d.revNum = n
	case os.IsNotExist(err):
		// 文档不存在，revNum 保持 -1
	default:
		return nil, fmt.Errorf("%w: 读修订号指针: %v", ErrStorageUnavailable, err)
	}
	s.docs[docID] = d
	return d, nil
}

func checkArg(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: 非法名字 %q", ErrStorageUnavailable, name)
	}
	return nil
}

// Transact 以一个原子单元执行 spec。
// 求值顺序固定：wait → push 前置条件 → pull → write。wait 在文档锁外
// 阻塞；前置条件任一不成立时整个事务失败，后续写入不生效。
func (s *LocalStore) Transact(ctx context.Context, docID string, spec Spec) (Result, error) {
	res := Result{RevNum: -1}
	if err := checkArg(docID); err != nil {
		return res, err
	}
	for _, op := range spec.ops {
		if op.path != "" {
			if err := checkArg(op.path); err != nil {
				return res, err
			}
		}
		if op.kind == kindWritePath && op.path == revNumFile {
			return res, fmt.Errorf("%w: %s 只能通过 WriteRevNum 写", ErrStorageUnavailable, revNumFile)
		}
	}

	d, err := s.doc(docID)
	if err != nil {
		return res, err
	}

	timeout := s.defaultTimeout
	for _, op := range spec.ops {
		if op.kind == kindTimeout && op.timeout > 0 {
			timeout = op.timeout
		}
	}
	deadline := time.Now().Add(timeout)

	// 1) wait：不持锁阻塞，等修订号追上来
	for _, op := range spec.ops {
		if op.kind != kindWaitRevNum {
			continue
		}
		if err := d.waitRevNum(ctx, op.revNum, deadline); err != nil {
			return res, err
		}
	}

	// 2) 之后的检查/读/写在文档锁内一次完成，对同文档事务彼此串行
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := s.docDir(docID)
	for _, op := range spec.ops {
		switch op.kind {
		case kindCheckPathPresent:
			if _, err := os.Stat(filepath.Join(dir, op.path)); err != nil {
				if os.IsNotExist(err) {
					return res, fmt.Errorf("%w: doc=%s path=%s", ErrPathNotFound, docID, op.path)
				}
				return res, fmt.Errorf("%w: stat %s: %v", ErrStorageUnavailable, op.path, err)
			}
		case kindCheckPathAbsent:
			_, err := os.Stat(filepath.Join(dir, op.path))
			if err == nil {
				// 路径已被别人抢先写入，对调用方来说就是一次修订竞争
				return res, fmt.Errorf("%w: doc=%s path=%s 已存在", ErrRevisionMismatch, docID, op.path)
			}
			if !os.IsNotExist(err) {
				return res, fmt.Errorf("%w: stat %s: %v", ErrStorageUnavailable, op.path, err)
			}
		case kindCheckRevNum:
			if d.revNum != op.revNum {
				return res, &ConflictError{DocID: docID, Expected: op.revNum, Current: d.revNum}
			}
		}
	}

	// 3) pull
	for _, op := range spec.ops {
		switch op.kind {
		case kindReadPath:
			b, err := os.ReadFile(filepath.Join(dir, op.path))
			if err != nil {
				if os.IsNotExist(err) {
					return res, fmt.Errorf("%w: doc=%s path=%s", ErrPathNotFound, docID, op.path)
				}
				return res, fmt.Errorf("%w: 读 %s: %v", ErrStorageUnavailable, op.path, err)
			}
			if res.Data == nil {
				res.Data = make(map[string][]byte)
			}
			res.Data[op.path] = b
		case kindReadRevNum:
			res.RevNum = d.revNum
		}
	}

	// 4) write
	for _, op := range spec.ops {
		switch op.kind {
		case kindWritePath:
			if err := writeAtomic(dir, op.path, op.data); err != nil {
				return res, err
			}
		case kindWriteRevNum:
			if err := writeAtomic(dir, revNumFile, []byte(strconv.Itoa(op.revNum))); err != nil {
				return res, err
			}
			d.revNum = op.revNum
			// 广播：唤醒所有 waitRevNum 的等待者
			close(d.watch)
			d.watch = make(chan struct{})
		}
	}
	return res, nil
}

// waitRevNum 阻塞到 revNum >= n，或超时/取消。
func (d *docState) waitRevNum(ctx context.Context, n int, deadline time.Time) error {
	for {
		d.mu.Lock()
		if d.revNum >= n {
			d.mu.Unlock()
			return nil
		}
		ch := d.watch
		d.mu.Unlock()

		remain := time.Until(deadline)
		if remain <= 0 {
			return fmt.Errorf("%w: 等待修订 %d", ErrTimeout, n)
		}
		timer := time.NewTimer(remain)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return fmt.Errorf("%w: 等待修订 %d", ErrTimeout, n)
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: 等待修订 %d: %v", ErrTimeout, n, ctx.Err())
		}
	}
}

// writeAtomic：临时文件 + rename，避免写一半被读到。
func writeAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrStorageUnavailable, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: 建临时文件: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: 写 %s: %v", ErrStorageUnavailable, name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: 关闭临时文件: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", ErrStorageUnavailable, name, err)
	}
	return nil
}
