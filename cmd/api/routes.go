package main

import (
	"database/sql"
	"net/http"
	"time"

	"voice-receptionist/internal/audit"
	"voice-receptionist/internal/auth"
	"voice-receptionist/internal/calls"
	"voice-receptionist/internal/config"
	"voice-receptionist/internal/events"
	"voice-receptionist/internal/gemini"
	"voice-receptionist/internal/httpapi"
	"voice-receptionist/internal/knowledge"
	"voice-receptionist/internal/prompts"
	"voice-receptionist/internal/rbac"
	"voice-receptionist/internal/routing"
	"voice-receptionist/internal/storage"
	"voice-receptionist/internal/summary"
	"voice-receptionist/internal/telephony"
	"voice-receptionist/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	voicePath  = "/voice"
	gatherPath = "/voice/gather"
	statusPath = "/voice/status"
)

type deps struct {
	cfg    config.Config
	script prompts.Script
	auth   *auth.Manager
	db     *sql.DB

	calls *calls.PostgresRepo
	bots  *knowledge.PostgresRepo
	audit *audit.Service

	ai        *gemini.Client
	objects   storage.ObjectStore
	publisher events.Publisher
	limiter   knowledge.Limiter
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Twilio webhooks.
	{
		engine := &summary.Engine{
			Model:        d.ai,
			Store:        d.calls,
			Events:       d.publisher,
			Instruction:  d.script.SummaryInstruction,
			DefaultBotID: d.cfg.Twilio.DefaultBotID,
		}
		h := telephony.WebhookHandler{
			Router: routing.Router{
				Calls:        d.calls,
				Bots:         d.bots,
				DefaultBotID: d.cfg.Twilio.DefaultBotID,
			},
			Recorder:      calls.Capturer{Repo: d.calls},
			Status:        calls.Completer{Repo: d.calls, Summarizer: engine, Timeout: d.cfg.Gemini.SummaryTimeout},
			Script:        d.script,
			SharedLine:    d.cfg.Twilio.DefaultBotID != "",
			PublicBaseURL: d.cfg.Twilio.PublicBaseURL,
			GatherPath:    gatherPath,
		}

		voice := r.Group("")
		if d.cfg.Twilio.ValidateSignature {
			voice.Use(telephony.RequireSignature(d.cfg.Twilio.AuthToken, d.cfg.Twilio.PublicBaseURL))
		}
		voice.POST(voicePath, h.HandleVoice)
		voice.POST(gatherPath, h.HandleGather)
		voice.POST(statusPath, h.HandleStatus)
	}

	h := httpapi.Handlers{
		Auth:  d.auth,
		Calls: calls.NewService(d.calls, d.audit),
		Bots:  d.bots,
		Knowledge: &knowledge.Pipeline{
			Repo:         d.bots,
			Objects:      d.objects,
			Index:        d.ai,
			Limiter:      d.limiter,
			Events:       d.publisher,
			Audit:        d.audit,
			PollInterval: d.cfg.Knowledge.PollInterval,
			PollTimeout:  d.cfg.Knowledge.PollTimeout,
		},
	}

	r.POST("/v1/auth/refresh", h.Refresh)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		read := v1.Group("")
		read.Use(rbac.RequireAnyRole(rbac.Readers...))
		read.GET("/me", h.Me)
		read.GET("/calls", h.ListCalls)
		read.GET("/calls/:id", h.GetCall)
		read.GET("/leads", h.ListLeads)
		read.GET("/bots", h.ListBots)

		// Mutations. viewer is read-only.
		write := v1.Group("")
		write.Use(rbac.RequireAnyRole(rbac.Writers...))
		write.PATCH("/leads/:id", h.UpdateLeadStatus)
		write.POST("/bots/:bot_id/files", h.UploadKnowledgeFile)
	}
}

var (
	_ summary.TextGenerator = (*gemini.Client)(nil)
	_ knowledge.Indexer     = (*gemini.Client)(nil)
	_ routing.BotResolver   = (*knowledge.PostgresRepo)(nil)
	_ calls.Summarizer      = (*summary.Engine)(nil)
)
