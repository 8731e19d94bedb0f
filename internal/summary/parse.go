package summary

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"voice-receptionist/internal/calls"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Result is the JSON contract the model is asked to produce.
type Result struct {
	Summary string        `json:"summary" validate:"required"`
	Intent  calls.Intent  `json:"intent" validate:"required,oneof=info sales support other"`
	Urgency calls.Urgency `json:"urgency" validate:"required,oneof=low medium high"`
	Lead    *LeadDetails  `json:"lead,omitempty"`

	// LeadJSON is the lead object as the model wrote it.
	LeadJSON json.RawMessage `json:"-"`
}

type LeadDetails struct {
	Name          *string `json:"name,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Reason        *string `json:"reason,omitempty"`
	NextStep      *string `json:"next_step,omitempty"`
	NeedsFollowUp *bool   `json:"needs_follow_up,omitempty"`
}

var fenceRe = regexp.MustCompile("```json|```")

// StripFences removes markdown code fences the model tends to wrap JSON in.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// ParseResult decodes model output. ok is false when the output is not a JSON
// object of the expected shape; that is a normal outcome, not an error.
func ParseResult(raw string) (Result, bool) {
	var wire struct {
		Summary string          `json:"summary"`
		Intent  string          `json:"intent"`
		Urgency string          `json:"urgency"`
		Lead    json.RawMessage `json:"lead"`
	}
	if err := json.Unmarshal([]byte(StripFences(raw)), &wire); err != nil {
		return Result{}, false
	}

	r := Result{
		Summary: strings.TrimSpace(wire.Summary),
		Intent:  calls.Intent(strings.ToLower(strings.TrimSpace(wire.Intent))),
		Urgency: calls.Urgency(strings.ToLower(strings.TrimSpace(wire.Urgency))),
	}
	if lead := bytes.TrimSpace(wire.Lead); len(lead) > 0 && !bytes.Equal(lead, []byte("null")) {
		var d LeadDetails
		if err := json.Unmarshal(lead, &d); err != nil {
			return Result{}, false
		}
		r.Lead = &d
		r.LeadJSON = json.RawMessage(lead)
	}
	if err := validate.Struct(r); err != nil {
		return Result{}, false
	}
	return r, true
}

// BuildLead derives the lead row for call. Phone falls back to the caller's
// number; status is closed only when the model explicitly said no follow-up.
func BuildLead(call calls.Call, r Result, defaultBotID string) calls.Lead {
	l := calls.Lead{
		CallID:  call.ID,
		BotID:   call.BotID,
		Urgency: r.Urgency,
		Status:  calls.LeadStatusNew,
	}
	if l.BotID == nil && defaultBotID != "" {
		id := defaultBotID
		l.BotID = &id
	}

	if d := r.Lead; d != nil {
		l.Name = nonEmpty(d.Name)
		l.Phone = nonEmpty(d.Phone)
		l.Reason = nonEmpty(d.Reason)
		l.NextStep = nonEmpty(d.NextStep)
		if d.NeedsFollowUp != nil && !*d.NeedsFollowUp {
			l.Status = calls.LeadStatusClosed
		}
	}
	if l.Phone == nil && call.From != "" {
		from := call.From
		l.Phone = &from
	}
	return l
}

// nonEmpty treats a blank model field as not extracted.
func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
