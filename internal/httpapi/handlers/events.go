package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kseverny/interview-platform/internal/common"
)

type createEventReq struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ev, err := h.Repo.EventCreate(c.Request.Context(), req.Content)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, ev)
}

func (h *Handler) ListEvents(c *gin.Context) {
	page, perPage := pageParams(c)

	events, total, err := h.Repo.EventGetAll(c.Request.Context(), page, perPage)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, common.NewPaginated(events, page, perPage, total))
}
