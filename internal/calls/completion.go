package calls

import (
	"context"
	"errors"
	"strings"
	"time"

	"voice-receptionist/internal/telephony"
	"voice-receptionist/pkg/logger"
)

// Summarizer turns a completed call's transcript into a stored summary and lead.
type Summarizer interface {
	Summarize(ctx context.Context, call Call, transcript string) error
}

// Completer applies status callbacks.
type Completer struct {
	Repo       Repository
	Summarizer Summarizer

	// Timeout bounds summarization so the acknowledgment reaches Twilio
	// before it gives up on the webhook. Zero means no bound.
	Timeout time.Duration
}

// ProcessStatus records the reported status and, for completed calls with a
// transcript, summarizes the latest transcript. Summarization failures are
// logged and never returned.
func (c Completer) ProcessStatus(ctx context.Context, p telephony.Payload) error {
	sid := p.CallSid()
	if sid == "" {
		return nil
	}
	status := CallStatus(p.Get(telephony.FieldCallStatus))
	if status == "" {
		status = CallStatusUnknown
	}
	log := logger.From(ctx).With("call_sid", sid, "call_status", string(status))

	call, err := c.Repo.GetCallByProviderID(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		log.Warn("status ignored: call not recorded")
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.Repo.UpdateCallStatus(ctx, call.ID, status); err != nil {
		return err
	}
	if status != CallStatusCompleted {
		return nil
	}

	t, err := c.Repo.LatestTranscript(ctx, call.ID)
	if errors.Is(err, ErrNotFound) {
		log.Debug("no transcript to summarize")
		return nil
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(t.Text) == "" || c.Summarizer == nil {
		return nil
	}

	sctx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if err := c.Summarizer.Summarize(sctx, call, t.Text); err != nil {
		log.Error("call summary failed", "call_id", call.ID, "err", err)
	}
	return nil
}
