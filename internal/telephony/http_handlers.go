package telephony

import (
	"context"
	"net/http"

	"voice-receptionist/internal/prompts"
	"voice-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
)

// InboundRouter records a call on its initiation webhook.
type InboundRouter interface {
	RouteInbound(ctx context.Context, p Payload) error
}

// GatherRecorder stores the caller's speech or keypad input.
type GatherRecorder interface {
	RecordGather(ctx context.Context, p Payload) error
}

// StatusProcessor applies a status callback, summarizing completed calls.
type StatusProcessor interface {
	ProcessStatus(ctx context.Context, p Payload) error
}

// WebhookHandler serves Twilio voice webhooks.
//
// Every call-control handler answers with TwiML no matter what the
// collaborators return: a storage hiccup must not drop the call.
type WebhookHandler struct {
	Router   InboundRouter
	Recorder GatherRecorder
	Status   StatusProcessor

	Script prompts.Script

	// SharedLine selects the shared receptionist greeting.
	SharedLine bool

	// PublicBaseURL and GatherPath build the absolute gather action URL.
	PublicBaseURL string
	GatherPath    string
}

func (h WebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)
	p := h.payload(c)

	if h.Router != nil {
		if err := h.Router.RouteInbound(c.Request.Context(), p); err != nil {
			log.Error("call record upsert failed", "call_sid", p.CallSid(), "err", err)
		}
	}

	gatherPath := h.GatherPath
	if gatherPath == "" {
		gatherPath = "/voice/gather"
	}
	h.writeTwiML(c,
		Gather{
			Input:         "speech dtmf",
			Action:        CallbackURL(c.Request, h.PublicBaseURL, gatherPath),
			Method:        http.MethodPost,
			SpeechTimeout: "auto",
			Timeout:       h.Script.GatherTimeoutSeconds,
			Prompt:        &Say{Voice: h.Script.Voice, Text: h.Script.Prompt(h.SharedLine)},
		},
		Say{Voice: h.Script.Voice, Text: h.Script.NoInput},
		Hangup{},
	)
}

func (h WebhookHandler) HandleGather(c *gin.Context) {
	log := logger.FromGin(c)
	p := h.payload(c)

	if h.Recorder != nil {
		if err := h.Recorder.RecordGather(c.Request.Context(), p); err != nil {
			log.Error("transcript insert failed", "call_sid", p.CallSid(), "err", err)
		}
	}

	h.writeTwiML(c,
		Say{Voice: h.Script.Voice, Text: h.Script.Closing},
		Hangup{},
	)
}

// HandleStatus acknowledges with JSON, not TwiML: status callbacks are out of band.
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)
	p := h.payload(c)

	if h.Status != nil && p.CallSid() != "" {
		if err := h.Status.ProcessStatus(c.Request.Context(), p); err != nil {
			log.Error("status callback processing failed", "call_sid", p.CallSid(), "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// payload never fails the request; an unreadable body becomes an empty payload.
func (h WebhookHandler) payload(c *gin.Context) Payload {
	p, err := ParseWebhookForm(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("twilio webhook parse failed", "err", err)
		return Payload{}
	}
	if sid := p.CallSid(); sid != "" {
		c.Set(logger.CallSidKey, sid)
	}
	return p
}

func (h WebhookHandler) writeTwiML(c *gin.Context, verbs ...any) {
	body, err := RenderTwiML(verbs...)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		body = fallbackTwiML
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(body))
}
