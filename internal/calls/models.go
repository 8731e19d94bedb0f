package calls

import (
	"encoding/json"
	"time"
)

// Call is one phone interaction, keyed by Twilio's CallSid.
// Every lifecycle write is an upsert on ProviderCallID so webhook retries are safe.
type Call struct {
	ID    string  `json:"id"`
	BotID *string `json:"bot_id"`

	ProviderCallID string  `json:"twilio_sid"`
	From           string  `json:"from_number"`
	To             string  `json:"to_number"`
	ForwardedFrom  *string `json:"forwarded_from"`

	RoutedVia Route      `json:"routed_via"`
	Status    CallStatus `json:"status"`

	// RawPayload is the initiation webhook as received.
	RawPayload map[string]string `json:"raw_payload,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Route string

const (
	RouteForwarded Route = "forwarded"
	RouteDirect    Route = "direct"
	RoutePrompted  Route = "prompted"
)

// CallStatus is Twilio's vocabulary, passed through as received.
type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusCanceled   CallStatus = "canceled"
	CallStatusFailed     CallStatus = "failed"
	CallStatusUnknown    CallStatus = "unknown"
)

// IsTerminal reports whether no further transitions are expected.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled, CallStatusFailed:
		return true
	default:
		return false
	}
}

// SourceTwilioGather tags transcripts captured by the <Gather> webhook.
const SourceTwilioGather = "twilio_gather"

// Transcript is append-only; the latest one wins when summarizing.
type Transcript struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Text      string    `json:"transcript"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type Intent string

const (
	IntentInfo    Intent = "info"
	IntentSales   Intent = "sales"
	IntentSupport Intent = "support"
	IntentOther   Intent = "other"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Summary is unique per call.
type Summary struct {
	ID      string  `json:"id"`
	CallID  string  `json:"call_id"`
	Summary string  `json:"summary"`
	Intent  Intent  `json:"intent"`
	Urgency Urgency `json:"urgency"`

	// LeadJSON is the lead object exactly as the model produced it; null when absent.
	LeadJSON json.RawMessage `json:"lead_json"`

	CreatedAt time.Time `json:"created_at"`
}

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusClosed    LeadStatus = "closed"
	LeadStatusIgnored   LeadStatus = "ignored"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusClosed, LeadStatusIgnored:
		return true
	default:
		return false
	}
}

// Lead is unique per call. Status is owned by operators after creation.
type Lead struct {
	ID       string     `json:"id"`
	CallID   string     `json:"call_id"`
	BotID    *string    `json:"bot_id"`
	Name     *string    `json:"name"`
	Phone    *string    `json:"phone"`
	Reason   *string    `json:"reason"`
	Urgency  Urgency    `json:"urgency"`
	NextStep *string    `json:"next_step"`
	Status   LeadStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CallListItem is a dashboard row.
type CallListItem struct {
	Call
	BotName *string  `json:"bot_name"`
	Intent  *Intent  `json:"intent"`
	Urgency *Urgency `json:"urgency"`
}

// CallDetail carries the latest transcript and the summary, when present.
type CallDetail struct {
	CallListItem
	Transcript *Transcript `json:"transcript"`
	Summary    *Summary    `json:"summary"`
}

// LeadListItem is a lead joined with its call.
type LeadListItem struct {
	Lead
	CallStartedAt *time.Time `json:"call_started_at"`
	Intent        *Intent    `json:"intent"`
}
