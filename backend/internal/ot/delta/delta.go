package delta

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrBadDelta：输入 delta 本身不合法（负数长度、删除越过文档末尾等）。
// 属于调用方 bug，永远不重试、不截断，直接返回。
var ErrBadDelta = errors.New("BAD_DELTA")

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
	KindEmbed  Kind = "embed"
)

type Op struct {
	Kind  Kind           `json:"kind"`            // "retain" / "insert" / "delete" / "embed"
	Count int            `json:"count,omitempty"` // retain/delete 的长度
	Text  string         `json:"text,omitempty"`  // insert 的文本
	Embed string         `json:"embed,omitempty"` // embed 的类型标签（如 "image"）
	Value any            `json:"value,omitempty"` // embed 的内容
	Attrs map[string]any `json:"attrs,omitempty"` // 样式属性（粗体/颜色等）
}

// Delta 是一组有序操作，描述“从一个文档体到另一个文档体”的变换。
// 构造完成后视为不可变；所有组合/变换都返回新的 Delta。
type Delta []Op

// opBaseLen：该操作消耗多少基文档长度。
func opBaseLen(op Op) int {
	switch op.Kind {
	case KindRetain, KindDelete:
		return op.Count
	default:
		return 0
	}
}

// opTargetLen：该操作在结果文档里产出多少长度。embed 固定算 1。
func opTargetLen(op Op) int {
	switch op.Kind {
	case KindRetain:
		return op.Count
	case KindInsert:
		return len([]rune(op.Text))
	case KindEmbed:
		return 1
	default:
		return 0
	}
}

// BaseLen 返回应用本 delta 所需的基文档最小长度。
func (d Delta) BaseLen() int {
	n := 0
	for _, op := range d {
		n += opBaseLen(op)
	}
	return n
}

// TargetLen 返回应用本 delta 后结果文档的长度（按 rune 计）。
func (d Delta) TargetLen() int {
	n := 0
	for _, op := range d {
		n += opTargetLen(op)
	}
	return n
}

// IsDocument：只含 insert/embed 的 delta 可以直接当作完整文档体。
func (d Delta) IsDocument() bool {
	for _, op := range d {
		if op.Kind != KindInsert && op.Kind != KindEmbed {
			return false
		}
	}
	return true
}

// IsEmpty：空 delta 是 Compose 的单位元。
func (d Delta) IsEmpty() bool {
	return len(d) == 0
}

// Check 校验结构合法性。长度为零或为负的 retain/delete、空 insert、
// 缺类型标签的 embed 都算坏 delta。
func (d Delta) Check() error {
	for i, op := range d {
		switch op.Kind {
		case KindRetain, KindDelete:
			if op.Count <= 0 {
				return fmt.Errorf("%w: op[%d] %s count=%d", ErrBadDelta, i, op.Kind, op.Count)
			}
			if op.Kind == KindDelete && op.Attrs != nil {
				return fmt.Errorf("%w: op[%d] delete 不能携带属性", ErrBadDelta, i)
			}
		case KindInsert:
			if op.Text == "" {
				return fmt.Errorf("%w: op[%d] 空 insert", ErrBadDelta, i)
			}
		case KindEmbed:
			if op.Embed == "" {
				return fmt.Errorf("%w: op[%d] embed 缺类型标签", ErrBadDelta, i)
			}
		default:
			return fmt.Errorf("%w: op[%d] 未知类型 %q", ErrBadDelta, i, op.Kind)
		}
	}
	return nil
}

// Push 追加一个操作并做规范化：
// - 丢弃零长度操作
// - 相邻的同类 retain/delete 合并；属性相同的相邻 insert 合并
// - insert 紧跟在 delete 之后时交换顺序（同一位置“先插后删”为规范形，
//   保证语义相同的 delta 有唯一表示，方便相等性比较）
func (d Delta) Push(op Op) Delta {
	if opBaseLen(op) == 0 && opTargetLen(op) == 0 {
		return d
	}
	idx := len(d)
	if idx > 0 && d[idx-1].Kind == KindDelete && (op.Kind == KindInsert || op.Kind == KindEmbed) {
		idx--
	}
	if idx > 0 {
		last := d[idx-1]
		switch {
		case op.Kind == KindDelete && last.Kind == KindDelete:
			out := append(Delta{}, d...)
			out[idx-1].Count += op.Count
			return out
		case op.Kind == KindRetain && last.Kind == KindRetain && sameAttrs(op.Attrs, last.Attrs):
			out := append(Delta{}, d...)
			out[idx-1].Count += op.Count
			return out
		case op.Kind == KindInsert && last.Kind == KindInsert && sameAttrs(op.Attrs, last.Attrs):
			out := append(Delta{}, d...)
			out[idx-1].Text += op.Text
			return out
		}
	}
	out := make(Delta, 0, len(d)+1)
	out = append(out, d[:idx]...)
	out = append(out, op)
	out = append(out, d[idx:]...)
	return out
}

// Retain / Insert / Delete / Embed：链式构造器，配合 Push 做规范化。
func (d Delta) Retain(n int, attrs map[string]any) Delta {
	return d.Push(Op{Kind: KindRetain, Count: n, Attrs: attrs})
}

func (d Delta) Insert(text string, attrs map[string]any) Delta {
	return d.Push(Op{Kind: KindInsert, Text: text, Attrs: attrs})
}

func (d Delta) Delete(n int) Delta {
	return d.Push(Op{Kind: KindDelete, Count: n})
}

func (d Delta) Embed(embedType string, value any, attrs map[string]any) Delta {
	return d.Push(Op{Kind: KindEmbed, Embed: embedType, Value: value, Attrs: attrs})
}

// chop 去掉末尾的无属性 retain（它是恒等操作）。
func (d Delta) chop() Delta {
	for len(d) > 0 {
		last := d[len(d)-1]
		if last.Kind != KindRetain || last.Attrs != nil {
			break
		}
		d = d[:len(d)-1]
	}
	return d
}

// Equal 按规范形比较两个 delta。
func (d Delta) Equal(other Delta) bool {
	a, b := d.chop(), other.chop()
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func sameAttrs(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// mergeAttrs：compose 时后发属性覆盖先发属性。值为 nil 表示清除该属性。
func mergeAttrs(base, over map[string]any) map[string]any {
	if len(over) == 0 {
		return copyAttrs(base)
	}
	out := copyAttrs(base)
	if out == nil {
		out = make(map[string]any, len(over))
	}
	for k, v := range over {
		if v == nil {
			delete(out, k)
		} else {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func copyAttrs(a map[string]any) map[string]any {
	if len(a) == 0 {
		return nil
	}
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ApplyToDocument 把 d 应用到文档体 body 上，返回新的文档体。
// body 必须是纯 insert/embed 的文档形 delta；d 消耗的长度不能超过文档长度
// （删除/保留越过末尾按坏 delta 处理，不做截断）。
func ApplyToDocument(body, d Delta) (Delta, error) {
	if !body.IsDocument() {
		return nil, fmt.Errorf("%w: 基文档不是 document 形", ErrBadDelta)
	}
	if err := d.Check(); err != nil {
		return nil, err
	}
	if d.BaseLen() > body.TargetLen() {
		return nil, fmt.Errorf("%w: delta 消耗 %d 超过文档长度 %d",
			ErrBadDelta, d.BaseLen(), body.TargetLen())
	}
	return Compose(body, d)
}

// EndsWithNewline：文档体是否以行结束符收尾。空文档视为满足。
func (d Delta) EndsWithNewline() bool {
	if len(d) == 0 {
		return true
	}
	last := d[len(d)-1]
	return last.Kind == KindInsert && strings.HasSuffix(last.Text, "\n")
}
