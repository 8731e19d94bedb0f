package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"voice-receptionist/internal/audit"
	"voice-receptionist/internal/auth"
	"voice-receptionist/internal/calls"
	"voice-receptionist/internal/knowledge"
	"voice-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
)

// BotLister lists the bots a dashboard user belongs to.
type BotLister interface {
	ListBotsForUser(ctx context.Context, userID string) ([]knowledge.BotWithFiles, error)
}

// Ingester runs an uploaded file through the knowledge pipeline.
type Ingester interface {
	Ingest(ctx context.Context, actor audit.Actor, u knowledge.Upload) (knowledge.File, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Calls     *calls.Service
	Bots      BotLister
	Knowledge Ingester
}

func actorFrom(c *gin.Context) audit.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return audit.Actor{UserID: uid, Role: role, IP: c.ClientIP()}
}

// writeError maps service errors onto status codes. Unknown errors are logged
// and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	var ve *knowledge.ValidationError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	case errors.Is(err, knowledge.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have access to this bot."})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, knowledge.ErrBotNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "bot not found"})
	case errors.Is(err, knowledge.ErrBusy):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Another upload for this bot is in progress. Try again shortly."})
	case errors.Is(err, knowledge.ErrDuplicateFile):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "This file was just uploaded. Try again shortly."})
	case errors.Is(err, knowledge.ErrIngestFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Auth ---

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a new token pair.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h Handlers) Me(c *gin.Context) {
	a := actorFrom(c)
	c.JSON(http.StatusOK, gin.H{"user_id": a.UserID, "role": a.Role})
}

// --- Calls and leads ---

type listQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

func (h Handlers) ListCalls(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	items, err := h.Calls.ListCalls(c.Request.Context(), actorFrom(c).UserID, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": items})
}

func (h Handlers) GetCall(c *gin.Context) {
	detail, err := h.Calls.GetCall(c.Request.Context(), actorFrom(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h Handlers) ListLeads(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	items, err := h.Calls.ListLeads(c.Request.Context(), actorFrom(c).UserID, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": items})
}

type leadStatusRequest struct {
	Status calls.LeadStatus `json:"status" binding:"required,oneof=new contacted closed ignored"`
}

// UpdateLeadStatus lets an operator triage a lead.
// RBAC: admin or operator.
func (h Handlers) UpdateLeadStatus(c *gin.Context) {
	var req leadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status must be one of new, contacted, closed, ignored"})
		return
	}
	lead, err := h.Calls.UpdateLeadStatus(c.Request.Context(), actorFrom(c), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

// --- Knowledge ---

func (h Handlers) ListBots(c *gin.Context) {
	bots, err := h.Bots.ListBotsForUser(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": bots})
}

// UploadKnowledgeFile accepts a multipart "file" and indexes it for the bot.
// RBAC: admin or operator.
func (h Handlers) UploadKnowledgeFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, &knowledge.ValidationError{Message: "Please select a file."})
		return
	}
	if fh.Size >= knowledge.MaxFileBytes {
		writeError(c, &knowledge.ValidationError{Message: "File size must be under 4 MB."})
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, knowledge.MaxFileBytes))
	if err != nil {
		writeError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	file, err := h.Knowledge.Ingest(c.Request.Context(), actorFrom(c), knowledge.Upload{
		BotID:    c.Param("bot_id"),
		FileName: fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		if errors.Is(err, knowledge.ErrIngestFailed) && file.ID != "" {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error(), "file": file})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}
