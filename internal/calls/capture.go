package calls

import (
	"context"
	"errors"
	"strings"
	"time"

	"voice-receptionist/internal/telephony"
	"voice-receptionist/pkg/logger"
)

// Capturer stores gather results as transcripts.
type Capturer struct {
	Repo  Repository
	Clock func() time.Time
}

// RecordGather inserts the caller's speech (or, failing that, keypad digits).
// Input for a call that was never recorded is dropped: the initiation
// webhook may have been lost or may still be in flight.
func (c Capturer) RecordGather(ctx context.Context, p telephony.Payload) error {
	sid := p.CallSid()
	text := GatherText(p)
	if sid == "" || text == "" {
		return nil
	}

	call, err := c.Repo.GetCallByProviderID(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		logger.From(ctx).Warn("transcript dropped: call not recorded", "call_sid", sid)
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now
	if c.Clock != nil {
		now = c.Clock
	}
	_, err = c.Repo.InsertTranscript(ctx, Transcript{
		CallID:    call.ID,
		Text:      text,
		Source:    SourceTwilioGather,
		CreatedAt: now().UTC(),
	})
	return err
}

// GatherText prefers SpeechResult over Digits.
func GatherText(p telephony.Payload) string {
	if s := p.Get(telephony.FieldSpeechResult); s != "" {
		return s
	}
	return strings.TrimSpace(p.Get(telephony.FieldDigits))
}
