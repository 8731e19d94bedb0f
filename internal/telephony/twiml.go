package telephony

import (
	"bytes"
	"encoding/xml"
)

// TwiML verbs. Only the primitives the receptionist needs.
// Ref: https://www.twilio.com/docs/voice/twiml

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	Prompt        *Say     `xml:"Say,omitempty"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// fallbackTwiML is written when rendering fails so the caller still gets a valid document.
const fallbackTwiML = xml.Header + "<Response><Hangup></Hangup></Response>"

// RenderTwiML wraps verbs in a Response envelope. Verbs are not validated.
func RenderTwiML(verbs ...any) (string, error) {
	r := twimlResponse{Verbs: verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
