package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/filestore"
	"syncServer/backend/internal/revision"
)

type DocumentHandlers struct {
	svc collab.Service
}

func NewDocumentHandlers(svc collab.Service) *DocumentHandlers {
	return &DocumentHandlers{svc: svc}
}

type createDocumentReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *DocumentHandlers) CreateDocument(c *gin.Context) {
	// 从 gin.Context 获取用户信息；由鉴权中间件写入
	userId, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User context missing"})
		return
	}
	ownerID, ok := userId.(uint64)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID format"})
		return
	}

	var req createDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	docID, err := h.svc.CreateDocument(c.Request.Context(), ownerID, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"docId":     docID,
		"ownerId":   ownerID,
		"title":     req.Title,
		"createdAt": time.Now().Format(time.RFC3339),
	})
}

// GetDocument 返回最新正文的纯文本投影和修订号
func (h *DocumentHandlers) GetDocument(c *gin.Context) {
	docID := c.Param("docId")
	content, revNum, err := h.svc.LoadDocumentContent(c.Request.Context(), docID)
	if err != nil {
		writeDocError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "revNum": revNum, "content": content})
}

// GetSnapshot 返回指定修订的文档态 delta，?rev 缺省取最新
func (h *DocumentHandlers) GetSnapshot(c *gin.Context) {
	docID := c.Param("docId")
	revNum := revision.Latest
	if s := c.Query("rev"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rev"})
			return
		}
		revNum = n
	}
	snap, err := h.svc.Snapshot(c.Request.Context(), docID, revNum)
	if err != nil {
		writeDocError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "revNum": snap.RevNum, "contents": snap.Contents})
}

// GetChanges 返回 ?since 之后的变更，客户端用来追平
func (h *DocumentHandlers) GetChanges(c *gin.Context) {
	docID := c.Param("docId")
	since, err := strconv.Atoi(c.DefaultQuery("since", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	changes, err := h.svc.ChangesSince(c.Request.Context(), docID, since, limit)
	if err != nil {
		writeDocError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "changes": changes})
}

// WaitRevision 长轮询：阻塞到头修订 >= ?rev 再返回
func (h *DocumentHandlers) WaitRevision(c *gin.Context) {
	docID := c.Param("docId")
	target, err := strconv.Atoi(c.Query("rev"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rev"})
		return
	}
	revNum, err := h.svc.WaitForRevision(c.Request.Context(), docID, target, 0)
	if err != nil {
		if errors.Is(err, filestore.ErrTimeout) {
			// 超时不是故障，回 204 让客户端重新长轮询
			c.Status(http.StatusNoContent)
			return
		}
		writeDocError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "revNum": revNum})
}

func (h *DocumentHandlers) SaveSnapshot(c *gin.Context) {
	docID := c.Param("docId")
	if err := h.svc.SaveSnapshot(c.Request.Context(), docID); err != nil {
		writeDocError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "saved": true})
}

// Validate 巡检文档历史的一致性，只读
func (h *DocumentHandlers) Validate(c *gin.Context) {
	docID := c.Param("docId")
	status, err := h.svc.Validate(c.Request.Context(), docID)
	if err != nil {
		writeDocError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "status": status})
}

func writeDocError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, filestore.ErrPathNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, revision.ErrRevisionNotAvailable):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, revision.ErrTooMuchContention):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
