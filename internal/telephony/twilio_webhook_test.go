package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseWebhookForm(t *testing.T) {
	body := strings.NewReader("CallSid=CA123&From=%2B15551234567&To=%2B15557654321&Digits=1&Digits=2&SpeechResult=+hello+")
	r := httptest.NewRequest(http.MethodPost, "/voice", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p, err := ParseWebhookForm(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.CallSid() != "CA123" {
		t.Fatalf("expected CallSid, got %q", p.CallSid())
	}
	if p.Get(FieldFrom) != "+15551234567" || p.Get(FieldTo) != "+15557654321" {
		t.Fatalf("unexpected from/to: %q %q", p.Get(FieldFrom), p.Get(FieldTo))
	}
	if p[FieldDigits] != "1" {
		t.Fatalf("expected first value kept, got %q", p[FieldDigits])
	}
	if p[FieldSpeechResult] != " hello " {
		t.Fatalf("raw value must not be altered, got %q", p[FieldSpeechResult])
	}
	if p.Get(FieldSpeechResult) != "hello" {
		t.Fatalf("Get should trim, got %q", p.Get(FieldSpeechResult))
	}
	if p.Get(FieldForwardedFrom) != "" {
		t.Fatalf("absent field should be empty")
	}
}

func TestPayloadClone(t *testing.T) {
	p := Payload{"CallSid": "CA1"}
	c := p.Clone()
	c["CallSid"] = "CA2"
	if p["CallSid"] != "CA1" {
		t.Fatalf("clone must not alias")
	}
}
