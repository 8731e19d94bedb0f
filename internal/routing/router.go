package routing

import (
	"context"
	"fmt"

	"voice-receptionist/internal/calls"
	"voice-receptionist/internal/telephony"
	"voice-receptionist/pkg/logger"
)

// BotResolver finds the business registered under a forwarding number.
// It returns "" and no error when nothing matches.
type BotResolver interface {
	BotIDByForwardingNumber(ctx context.Context, number string) (string, error)
}

// Router records calls on their initiation webhook.
type Router struct {
	Calls calls.Repository
	Bots  BotResolver

	// DefaultBotID owns calls no business number matched. May be empty.
	DefaultBotID string
}

// RouteInbound upserts the call keyed by CallSid with status initiated.
// Retries of the same webhook converge on one row.
func (r Router) RouteInbound(ctx context.Context, p telephony.Payload) error {
	sid := p.CallSid()
	if sid == "" {
		return fmt.Errorf("routing: missing CallSid: %w", calls.ErrInvalidArgument)
	}
	route := Classify(p)

	c := calls.Call{
		ProviderCallID: sid,
		BotID:          r.resolveBot(ctx, route, p),
		From:           p.Get(telephony.FieldFrom),
		To:             p.Get(telephony.FieldTo),
		RoutedVia:      route,
		Status:         calls.CallStatusInitiated,
		RawPayload:     p.Clone(),
	}
	if fw := p.Get(telephony.FieldForwardedFrom); fw != "" {
		c.ForwardedFrom = &fw
	}

	stored, err := r.Calls.UpsertCall(ctx, c)
	if err != nil {
		return fmt.Errorf("upsert call: %w", err)
	}
	logger.From(ctx).Debug("call routed",
		"call_sid", sid,
		"call_id", stored.ID,
		"routed_via", string(route),
		"status", string(stored.Status),
	)
	return nil
}

// resolveBot never fails the call; lookup errors fall back to the default business.
func (r Router) resolveBot(ctx context.Context, route calls.Route, p telephony.Payload) *string {
	if number := lookupNumber(route, p); number != "" && r.Bots != nil {
		id, err := r.Bots.BotIDByForwardingNumber(ctx, number)
		if err != nil {
			logger.From(ctx).Warn("bot lookup failed", "call_sid", p.CallSid(), "err", err)
		} else if id != "" {
			return &id
		}
	}
	if r.DefaultBotID == "" {
		return nil
	}
	id := r.DefaultBotID
	return &id
}
