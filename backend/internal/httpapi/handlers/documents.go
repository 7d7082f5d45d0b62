package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/ot/delta"
	"collabcore/backend/internal/store"
)

// DocumentLister 列出用户的文档，由 store.DocumentStore 实现，可为 nil
type DocumentLister interface {
	ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]store.Document, error)
}

type DocumentHandler struct {
	svc      collab.Service
	lister   DocumentLister
	presence PresenceSource
}

func NewDocumentHandler(svc collab.Service, lister DocumentLister, presence PresenceSource) *DocumentHandler {
	return &DocumentHandler{svc: svc, lister: lister, presence: presence}
}

type createDocumentReq struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
}

type submitReq struct {
	BaseRevision uint64           `json:"baseRevision"`
	ClientID     string           `json:"clientId" binding:"required"`
	ClientSeq    uint64           `json:"clientSeq" binding:"required"`
	Op           *delta.Operation `json:"op" binding:"required"`
}

type undoReq struct {
	TargetRevision uint64 `json:"targetRevision"`
	ClientID       string `json:"clientId" binding:"required"`
}

func (h *DocumentHandler) Create(c *gin.Context) {
	ownerID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	docID, err := h.svc.CreateDocument(c.Request.Context(), ownerID, req.Title, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"docId": docID, "ownerId": ownerID, "title": req.Title, "createdAt": time.Now().Format(time.RFC3339)})
}

// List ?title= 时按标题查 ID，否则列出当前用户的文档
func (h *DocumentHandler) List(c *gin.Context) {
	if title := c.Query("title"); title != "" {
		docID, err := h.svc.GetDocumentID(c.Request.Context(), title)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"docId": docID, "title": title})
		return
	}
	ownerID, ok := currentUser(c)
	if !ok {
		return
	}
	if h.lister == nil {
		writeError(c, collab.ErrStoreNotConfigured)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	docs, err := h.lister.ListByOwner(c.Request.Context(), ownerID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		out = append(out, gin.H{"docId": d.ID, "title": d.Title, "createdAt": d.CreatedAt.Format(time.RFC3339)})
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	docID := c.Param("docID")
	content, rev, err := h.svc.LoadDocumentContent(c.Request.Context(), docID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "content": content, "revision": rev})
}

func (h *DocumentHandler) Revision(c *gin.Context) {
	docID := c.Param("docID")
	rev, err := h.svc.CurrentRevision(c.Request.Context(), docID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "revision": rev})
}

func (h *DocumentHandler) OpsSince(c *gin.Context) {
	docID := c.Param("docID")
	from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		badRequest(c, "invalid from")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return
	}
	ops, err := h.svc.OpsSince(c.Request.Context(), docID, from, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if ops == nil {
		ops = []collab.AppliedOp{}
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "ops": ops})
}

func (h *DocumentHandler) Submit(c *gin.Context) {
	authorID, ok := currentUser(c)
	if !ok {
		return
	}
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	docID := c.Param("docID")
	applied, err := h.svc.Submit(c.Request.Context(), docID, authorID, req.BaseRevision, req.ClientID, req.ClientSeq, req.Op)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}

func (h *DocumentHandler) ContentAt(c *gin.Context) {
	docID := c.Param("docID")
	rev, err := strconv.ParseUint(c.Param("rev"), 10, 64)
	if err != nil {
		badRequest(c, "invalid revision")
		return
	}
	content, err := h.svc.ContentAt(c.Request.Context(), docID, rev)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "revision": rev, "content": content})
}

func (h *DocumentHandler) Undo(c *gin.Context) {
	authorID, ok := currentUser(c)
	if !ok {
		return
	}
	var req undoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	docID := c.Param("docID")
	applied, err := h.svc.Undo(c.Request.Context(), docID, authorID, req.ClientID, req.TargetRevision)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}

func (h *DocumentHandler) Snapshot(c *gin.Context) {
	docID := c.Param("docID")
	if err := h.svc.SaveSnapshot(c.Request.Context(), docID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) Presence(c *gin.Context) {
	docID := c.Param("docID")
	members, err := h.svc.Presence(c.Request.Context(), docID)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.presence != nil {
		members = h.presence.Members(c.Request.Context(), docID, members)
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "members": members})
}
