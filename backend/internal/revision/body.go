package revision

import (
	"context"
	"fmt"

	"syncServer/backend/internal/filestore"
	"syncServer/backend/internal/ot/delta"
)

// bodyHandler 是正文文档的 ContentHandler 实现。
// requireNewline 打开时，落盘前强制文档体以行结束符收尾
//（富文本编辑器的文档约定）；纯文本场景可以关掉。
type bodyHandler struct {
	requireNewline bool
}

func NewBodyHandler(requireNewline bool) ContentHandler {
	return &bodyHandler{requireNewline: requireNewline}
}

func (h *bodyHandler) AfterInit(ctx context.Context, c *Control) error {
	// 预热：把头修订快照折叠出来，后续读走缓存
	_, err := c.GetSnapshot(ctx, Latest)
	return err
}

func (h *bodyHandler) Validate(body delta.Delta) error {
	if !body.IsDocument() {
		return fmt.Errorf("%w: 应用结果不是 document 形", delta.ErrBadDelta)
	}
	if h.requireNewline && !body.IsEmpty() && !body.EndsWithNewline() {
		return fmt.Errorf("%w: 文档体必须以行结束符收尾", delta.ErrBadDelta)
	}
	return nil
}

// NewBodyControl 组装正文文档的修订控制实例。
func NewBodyControl(docID string, store filestore.Store, opts Options, requireNewline bool) *Control {
	return NewControl(docID, store, NewBodyHandler(requireNewline), opts)
}
