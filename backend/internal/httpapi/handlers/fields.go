package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/crdt"
)

type FieldHandler struct {
	svc      collab.Service
	notifier Notifier
}

func NewFieldHandler(svc collab.Service, notifier Notifier) *FieldHandler {
	return &FieldHandler{svc: svc, notifier: notifier}
}

func fieldBody(docID, field string, st *crdt.State) gin.H {
	return gin.H{"docId": docID, "field": field, "state": st, "value": st.Value()}
}

func (h *FieldHandler) Get(c *gin.Context) {
	docID, field := c.Param("docID"), c.Param("field")
	st, err := h.svc.Field(c.Request.Context(), docID, field)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fieldBody(docID, field, st))
}

// Merge 请求体是 {"kind":..., "state":...}，按字段的冲突策略与服务端状态合并
func (h *FieldHandler) Merge(c *gin.Context) {
	authorID, ok := currentUser(c)
	if !ok {
		return
	}
	var remote crdt.State
	if err := c.ShouldBindJSON(&remote); err != nil {
		badRequest(c, err.Error())
		return
	}
	docID, field := c.Param("docID"), c.Param("field")
	merged, err := h.svc.MergeField(c.Request.Context(), docID, field, authorID, &remote)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.notifier != nil {
		h.notifier.NotifyField(docID, field, authorID, merged)
	}
	c.JSON(http.StatusOK, fieldBody(docID, field, merged))
}
