package telephony

import (
	"net/http"
	"strings"
)

// Payload is a Twilio webhook body flattened to one value per field.
// Twilio sends everything as text, so nothing is coerced.
type Payload map[string]string

// Twilio voice webhook fields used by the pipeline.
// Ref: https://www.twilio.com/docs/usage/webhooks/voice-webhooks
const (
	FieldCallSid       = "CallSid"
	FieldFrom          = "From"
	FieldTo            = "To"
	FieldForwardedFrom = "ForwardedFrom"
	FieldCallStatus    = "CallStatus"
	FieldSpeechResult  = "SpeechResult"
	FieldDigits        = "Digits"
)

// ParseWebhookForm reads a form-encoded webhook body.
func ParseWebhookForm(r *http.Request) (Payload, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	p := make(Payload, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			p[k] = vs[0]
		}
	}
	return p, nil
}

// Get returns the trimmed value of key, or "" when absent.
func (p Payload) Get(key string) string {
	return strings.TrimSpace(p[key])
}

func (p Payload) CallSid() string { return p.Get(FieldCallSid) }

// Clone returns a copy safe to retain after the request ends.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
