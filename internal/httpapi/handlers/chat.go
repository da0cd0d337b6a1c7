package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kseverny/interview-platform/internal/chat"
	"github.com/kseverny/interview-platform/internal/common"
	"github.com/kseverny/interview-platform/internal/models"
	"github.com/kseverny/interview-platform/internal/store/rabbitmq"
)

func pageParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func chatIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("chat_id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid chat id")
		return 0, false
	}
	return id, true
}

func (h *Handler) ListChats(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	page, perPage := pageParams(c)

	// admins may list all chats or another user's
	owner := &claims.UserID
	if claims.Role == models.RoleAdmin {
		if v := c.Query("user_id"); v != "" {
			if uid, err := strconv.ParseUint(v, 10, 64); err == nil {
				owner = &uid
			}
		} else {
			owner = nil
		}
	}

	chats, total, err := h.ChatSvc.ChatList(c.Request.Context(), owner, page, perPage)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, common.NewPaginated(chats, page, perPage, total))
}

type createChatReq struct {
	Title             string `json:"title" binding:"required,max=256"`
	Language          int    `json:"language"`
	Difficulty        int    `json:"difficulty"`
	Politeness        int    `json:"politeness"`
	Friendliness      int    `json:"friendliness"`
	Rigidity          int    `json:"rigidity"`
	DetailOrientation int    `json:"detail_orientation"`
	Pacing            int    `json:"pacing"`
	ProgressionType   int    `json:"progression_type"`
	InitialContext    string `json:"initial_context"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	prepared, err := h.ChatSvc.PrepareInitialContext(c.Request.Context(), req.InitialContext)
	if err != nil {
		if errors.Is(err, chat.ErrContextRejected) {
			common.Fail(c, http.StatusBadRequest, 10030, "initial context rejected")
			return
		}
		common.Fail(c, http.StatusBadGateway, 50201, "ai provider error")
		return
	}

	st, err := h.ChatSvc.ChatCreate(c.Request.Context(), claims.UserID, claims.Role, chat.CreateChatParams{
		Title:             req.Title,
		Language:          req.Language,
		Difficulty:        req.Difficulty,
		Politeness:        req.Politeness,
		Friendliness:      req.Friendliness,
		Rigidity:          req.Rigidity,
		DetailOrientation: req.DetailOrientation,
		Pacing:            req.Pacing,
		ProgressionType:   req.ProgressionType,
		InitialContext:    prepared,
	})
	if err != nil {
		if errors.Is(err, chat.ErrChatLimit) {
			common.Fail(c, http.StatusForbidden, 40310, "anonymous accounts are limited to one chat")
			return
		}
		log.Error().Err(err).Uint64("user_id", claims.UserID).Msg("chat create failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create chat")
		return
	}
	common.OK(c, st)
}

func (h *Handler) GetChat(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	st, err := h.ChatSvc.ChatGet(c.Request.Context(), chatID, claims.UserID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to load chat")
		return
	}
	common.OK(c, st)
}

func (h *Handler) ArchiveChat(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	st, err := h.ChatSvc.ChatArchive(c.Request.Context(), chatID, claims.UserID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
			return
		}
		log.Error().Err(err).Uint64("chat_id", chatID).Msg("chat archive failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to archive chat")
		return
	}
	common.OK(c, st)
}

type sendMessageReq struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage admits the turn into the shared queue and hands it to the
// worker over the broker. The reply arrives in the chat state; clients poll
// GET /chats/:chat_id and watch queue_position drop to zero.
func (h *Handler) SendMessage(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	st, pos, err := h.ChatSvc.AdmitTurn(c.Request.Context(), chatID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40404, "chat not found")
		case errors.Is(err, chat.ErrAccessDenied):
			common.Fail(c, http.StatusConflict, 40910, "previous request still queued")
		default:
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to queue message")
		}
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		// no job will ever consume this cell; give it back
		h.ChatSvc.ReleaseAdmission(c.Request.Context(), chatID, claims.UserID)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if err := h.Rabbit.PublishTurn(c.Request.Context(), rabbitmq.TurnMessage{
		JobID:   jobID,
		ChatID:  chatID,
		UserID:  claims.UserID,
		Role:    chat.RoleUser,
		Content: req.Content,
	}); err != nil {
		log.Error().Err(err).Uint64("chat_id", chatID).Msg("turn publish failed")
		h.ChatSvc.ReleaseAdmission(c.Request.Context(), chatID, claims.UserID)
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	common.OK(c, gin.H{
		"job_id":         jobID,
		"queue_position": pos,
		"chat":           st,
	})
}
