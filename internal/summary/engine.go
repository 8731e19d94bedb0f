package summary

import (
	"context"
	"fmt"

	"voice-receptionist/internal/calls"
	"voice-receptionist/internal/events"
	"voice-receptionist/pkg/logger"
)

// TextGenerator is the text-completion capability.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Store persists a summary and its lead together.
type Store interface {
	UpsertSummaryAndLead(ctx context.Context, s calls.Summary, l calls.Lead) (calls.Summary, calls.Lead, error)
}

// Engine summarizes completed calls.
type Engine struct {
	Model  TextGenerator
	Store  Store
	Events events.Publisher

	// Instruction is prepended to the transcript.
	Instruction string

	// DefaultBotID owns leads from calls no business was resolved for.
	DefaultBotID string
}

// Generate asks the model for a summary. A nil Result with nil error means the
// model answered but not in the expected shape. Transport failures are errors.
func (e *Engine) Generate(ctx context.Context, transcript string) (*Result, error) {
	out, err := e.Model.GenerateText(ctx, e.Instruction+transcript)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	r, ok := ParseResult(out)
	if !ok {
		logger.From(ctx).Warn("summary output unparseable", "output", truncate(StripFences(out), 500))
		return nil, nil
	}
	return &r, nil
}

// Summarize generates and stores the summary and lead for call.
// Re-running for the same call overwrites the summary in place.
func (e *Engine) Summarize(ctx context.Context, call calls.Call, transcript string) error {
	r, err := e.Generate(ctx, transcript)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}

	s := calls.Summary{
		CallID:   call.ID,
		Summary:  r.Summary,
		Intent:   r.Intent,
		Urgency:  r.Urgency,
		LeadJSON: r.LeadJSON,
	}
	_, lead, err := e.Store.UpsertSummaryAndLead(ctx, s, BuildLead(call, *r, e.DefaultBotID))
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	logger.From(ctx).Info("call summarized",
		"call_id", call.ID,
		"intent", string(r.Intent),
		"urgency", string(r.Urgency),
		"lead_status", string(lead.Status),
	)
	events.Emit(ctx, e.Events, events.Event{
		Type: events.TypeCallSummarized,
		Key:  call.ID,
		Data: map[string]any{"intent": r.Intent, "urgency": r.Urgency},
	})
	events.Emit(ctx, e.Events, events.Event{
		Type: events.TypeLeadUpserted,
		Key:  call.ID,
		Data: map[string]any{"lead_id": lead.ID, "status": lead.Status, "phone": lead.Phone},
	})
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
